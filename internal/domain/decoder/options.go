package decoder

import (
	"github.com/okian/memocred/internal/domain/dedupe"
	"github.com/okian/memocred/pkg/logger"
)

// Option configures a Decoder.
type Option func(*Decoder)

// WithCurrency restricts decoding to payments in the given issued currency.
// Both three letter codes and 40 character hex codes are accepted on the ledger.
func WithCurrency(code string) Option {
	return func(d *Decoder) {
		d.currency = code
	}
}

// WithIssuer additionally requires the issued currency to come from issuer.
func WithIssuer(issuer string) Option {
	return func(d *Decoder) {
		d.issuer = issuer
	}
}

// WithDedupeSize bounds the per-iteration seen set; <=0 is unbounded.
func WithDedupeSize(n int) Option {
	return func(d *Decoder) {
		d.newDeduper = func() dedupe.Deduper {
			return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(n))
		}
	}
}

// WithSkipHook registers a callback invoked for every skipped memo or record.
func WithSkipHook(fn func(Skip)) Option {
	return func(d *Decoder) {
		if fn != nil {
			d.hooks = append(d.hooks, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}
