// Package errors provides error handling for memocred.
//
// It re-exports github.com/cockroachdb/errors so that every package gets
// stack traces, wrapping with context and error marks from one import.
//
// Usage:
//
//	if err := fetch(); err != nil {
//	    return errors.Wrap(err, "fetch ledger page")
//	}
//
//	if errors.Is(err, ledger.ErrLedgerUnavailable) {
//	    // pipeline-fatal
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// Details and hints
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Mark attaches a sentinel to err so that Is(err, sentinel) holds while the
// original message is preserved.
var Mark = crdb.Mark

// Reason returns the outermost message of err, or "" for a nil error.
// It is used where a failure has to be recorded as data instead of returned.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
