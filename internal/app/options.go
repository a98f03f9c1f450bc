package app

import (
	"time"

	"github.com/okian/memocred/internal/adapters/snapshot"
	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/resolver"
	"github.com/okian/memocred/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithToken sets the currency code whose memos are collected. It also names
// the snapshot files.
func WithToken(currency string) Option {
	return func(p *Pipeline) {
		if currency != "" {
			p.token = currency
		}
	}
}

// WithIssuer sets the issuing account whose transactions are read.
func WithIssuer(issuer string) Option {
	return func(p *Pipeline) {
		if issuer != "" {
			p.issuer = issuer
		}
	}
}

// WithLedgerRange bounds the ledgers read. An end of zero means the current
// ledger.
func WithLedgerRange(start, end int64) Option {
	return func(p *Pipeline) {
		p.startLedger = start
		p.endLedger = end
	}
}

// WithPageLimit sets the ledger page size.
func WithPageLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.pageLimit = n
		}
	}
}

// WithModelName records the scoring model in the credibility snapshot.
func WithModelName(name string) Option {
	return func(p *Pipeline) { p.modelName = name }
}

// WithConcurrency sets the number of scoring workers and parallel link
// fetches.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize bounds the scoring queue.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithDedupeSize caps the memo dedupe set. Zero or less is unbounded.
func WithDedupeSize(n int) Option {
	return func(p *Pipeline) { p.dedupeSize = n }
}

// WithMergeWindow sets the fragment merge window.
func WithMergeWindow(d time.Duration) Option {
	return func(p *Pipeline) { p.mergeWindow = d }
}

// WithExtractor replaces the link extractor.
func WithExtractor(e *links.Extractor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithResolverOptions passes options to the run's content resolver.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(p *Pipeline) { p.resolverOpts = append(p.resolverOpts, opts...) }
}

// WithSnapshotWriter sets where snapshots are written.
func WithSnapshotWriter(w *snapshot.Writer) Option {
	return func(p *Pipeline) {
		if w != nil {
			p.writer = w
		}
	}
}

// WithWarmCache seeds the resolver from the memo snapshot of a previous run,
// if one exists.
func WithWarmCache(enabled bool) Option {
	return func(p *Pipeline) { p.warmCache = enabled }
}

// WithShutdownGrace bounds how long cancelled workers are waited for.
func WithShutdownGrace(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.shutdownGrace = d
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}
