// Package decoder turns raw ledger transactions into normalized memo records.
package decoder

import (
	"bytes"
	"context"
	"encoding/hex"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/memocred/internal/domain/dedupe"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// SkipReason classifies why a record or memo field produced no MemoRecord.
type SkipReason string

const (
	// Ignored records: not failures.
	SkipNotPayment SkipReason = "not_payment"
	SkipCurrency   SkipReason = "currency"
	SkipNoMemos    SkipReason = "no_memos"
	SkipDuplicate  SkipReason = "duplicate"

	// Decode failures.
	SkipEmpty         SkipReason = "empty"
	SkipBadHex        SkipReason = "bad_hex"
	SkipInvalidUTF8   SkipReason = "invalid_utf8"
	SkipInvalidAuthor SkipReason = "invalid_author"
)

// Failure reports whether the reason is a decode failure rather than a filter.
func (r SkipReason) Failure() bool {
	switch r {
	case SkipEmpty, SkipBadHex, SkipInvalidUTF8, SkipInvalidAuthor:
		return true
	default:
		return false
	}
}

// Skip describes one skipped record or memo field. MemoIndex and Sequence
// are -1 and 0 for record-level skips.
type Skip struct {
	TxHash    string
	MemoIndex int
	Sequence  int64
	Reason    SkipReason
	Err       error
}

// Stats summarizes one decoding pass.
type Stats struct {
	Records    int
	Qualifying int
	Decoded    int
	Duplicates int
	Failures   map[SkipReason]int
	Ignored    map[SkipReason]int
}

// FailureCount returns the total number of decode failures.
func (s Stats) FailureCount() int {
	n := 0
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// Decoder filters and decodes memo fields. It holds no per-run state, so one
// Decoder can be ranged over any number of times.
type Decoder struct {
	currency   string
	issuer     string
	newDeduper func() dedupe.Deduper
	hooks      []func(Skip)
	log        logger.Logger
}

// New creates a Decoder with the given options.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		newDeduper: func() dedupe.Deduper { return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0)) },
		log:        logger.Get().Named("decoder"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode lazily yields memo records in ledger order. Every range over the
// returned sequence decodes from the start with a fresh duplicate set.
func (d *Decoder) Decode(records []model.Transaction) iter.Seq[model.MemoRecord] {
	return func(yield func(model.MemoRecord) bool) {
		d.run(records, nil, yield)
	}
}

// Collect decodes everything and returns the records with pass statistics.
func (d *Decoder) Collect(records []model.Transaction) ([]model.MemoRecord, Stats) {
	stats := Stats{
		Failures: make(map[SkipReason]int),
		Ignored:  make(map[SkipReason]int),
	}
	out := make([]model.MemoRecord, 0, len(records))
	d.run(records, &stats, func(m model.MemoRecord) bool {
		out = append(out, m)
		return true
	})
	return out, stats
}

func (d *Decoder) run(records []model.Transaction, stats *Stats, yield func(model.MemoRecord) bool) {
	ctx := context.Background()
	seen := d.newDeduper()
	var seq int64

	skip := func(s Skip) {
		if stats != nil {
			switch {
			case s.Reason == SkipDuplicate:
				stats.Duplicates++
			case s.Reason.Failure():
				stats.Failures[s.Reason]++
			default:
				stats.Ignored[s.Reason]++
			}
		}
		if s.Reason == SkipDuplicate {
			metrics.RecordMemoDuplicate()
		} else {
			metrics.RecordMemoSkipped(string(s.Reason))
		}
		if s.Reason.Failure() {
			d.log.Debug(ctx, "memo skipped",
				logger.String("tx", s.TxHash),
				logger.Int("memo_index", s.MemoIndex),
				logger.String("reason", string(s.Reason)),
				logger.Error(s.Err))
		}
		for _, h := range d.hooks {
			h(s)
		}
	}

	for _, tx := range records {
		if stats != nil {
			stats.Records++
		}
		if reason, ok := d.qualifies(tx); !ok {
			skip(Skip{TxHash: tx.Hash, MemoIndex: -1, Reason: reason})
			continue
		}
		if stats != nil {
			stats.Qualifying++
		}

		validAuthor := ValidAddress(tx.Account)
		for i, memo := range tx.Memos {
			if seen.SeenAndRecord(ctx, dedupe.Key(tx.Hash, i)) {
				skip(Skip{TxHash: tx.Hash, MemoIndex: i, Reason: SkipDuplicate})
				continue
			}
			seq++

			if !validAuthor {
				skip(Skip{
					TxHash: tx.Hash, MemoIndex: i, Sequence: seq, Reason: SkipInvalidAuthor,
					Err: errors.Mark(errors.Newf("invalid sender address %q", tx.Account), ErrDecode),
				})
				continue
			}
			text, reason, err := DecodeText(memo.Data)
			if err != nil {
				skip(Skip{TxHash: tx.Hash, MemoIndex: i, Sequence: seq, Reason: reason, Err: err})
				continue
			}
			memoType, _, _ := DecodeText(memo.Type)

			if stats != nil {
				stats.Decoded++
			}
			metrics.RecordMemoDecoded()
			rec := model.MemoRecord{
				Author:      tx.Account,
				Sequence:    seq,
				Timestamp:   tx.Time(),
				RawText:     text,
				TxHash:      tx.Hash,
				MemoIndex:   i,
				LedgerIndex: tx.LedgerIndex,
				MemoType:    memoType,
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// qualifies applies the payment and currency filters.
func (d *Decoder) qualifies(tx model.Transaction) (SkipReason, bool) {
	if tx.Type != model.TransactionTypePayment {
		return SkipNotPayment, false
	}
	if d.currency != "" {
		if !tx.Amount.IsIssued() || !CurrencyMatches(tx.Amount.Currency, d.currency) {
			return SkipCurrency, false
		}
		if d.issuer != "" && tx.Amount.Issuer != d.issuer {
			return SkipCurrency, false
		}
	}
	if len(tx.Memos) == 0 {
		return SkipNoMemos, false
	}
	return "", true
}

// CurrencyMatches compares a ledger currency code with a configured symbol.
// Non-standard codes are 40 hex characters holding the NUL padded symbol.
func CurrencyMatches(code, want string) bool {
	if code == want {
		return true
	}
	if len(code) != 40 {
		return false
	}
	raw, err := hex.DecodeString(code)
	if err != nil {
		return false
	}
	return string(bytes.TrimRight(raw, "\x00")) == want
}

// DecodeText converts a hex memo field into NFC normalized text with NUL
// padding removed.
func DecodeText(field string) (string, SkipReason, error) {
	if strings.TrimSpace(field) == "" {
		return "", SkipEmpty, errors.Mark(errors.New("memo data is empty"), ErrDecode)
	}
	raw, err := hex.DecodeString(field)
	if err != nil {
		return "", SkipBadHex, errors.Mark(errors.Wrap(err, "hex decode memo"), ErrDecode)
	}
	raw = bytes.Trim(raw, "\x00")
	if len(raw) == 0 {
		return "", SkipEmpty, errors.Mark(errors.New("memo data is only padding"), ErrDecode)
	}
	if !utf8.Valid(raw) {
		return "", SkipInvalidUTF8, errors.Mark(errors.New("memo data is not valid UTF-8"), ErrDecode)
	}
	return norm.NFC.String(string(raw)), "", nil
}
