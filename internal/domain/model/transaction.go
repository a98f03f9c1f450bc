// Package model contains domain models passed between layers.
package model

import "time"

// RippleEpochOffset is the number of seconds between the Unix epoch and the
// ledger epoch (2000-01-01T00:00:00Z).
const RippleEpochOffset int64 = 946_684_800

// TransactionTypePayment is the only transaction type that carries token memos.
const TransactionTypePayment = "Payment"

// Amount is a ledger amount. Issued currencies set Currency, Issuer and Value;
// native amounts only set Drops.
type Amount struct {
	Currency string
	Issuer   string
	Value    string
	Drops    string
}

// IsIssued reports whether the amount is denominated in an issued currency.
func (a Amount) IsIssued() bool { return a.Currency != "" }

// Memo is one memo field as stored on the ledger, hex encoded.
type Memo struct {
	Data   string
	Type   string
	Format string
}

// Transaction is a raw ledger transaction record. Immutable once fetched.
type Transaction struct {
	Hash        string
	Type        string
	Account     string // sender
	Destination string
	Amount      Amount
	LedgerIndex int64
	Date        int64 // seconds since RippleEpochOffset
	Memos       []Memo
}

// Time converts the ledger date to UTC.
func (t Transaction) Time() time.Time {
	return RippleTime(t.Date)
}

// RippleTime converts ledger epoch seconds to a UTC time.
func RippleTime(sec int64) time.Time {
	return time.Unix(sec+RippleEpochOffset, 0).UTC()
}
