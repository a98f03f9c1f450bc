package app

import (
	"github.com/okian/memocred/internal/adapters/docs"
	"github.com/okian/memocred/internal/adapters/ledger"
	"github.com/okian/memocred/internal/adapters/llm"
	"github.com/okian/memocred/internal/adapters/snapshot"
	"github.com/okian/memocred/internal/config"
	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/resolver"
	"github.com/okian/memocred/internal/domain/scoring"
	"github.com/okian/memocred/pkg/errors"
)

// FromConfig builds a pipeline backed by the XRPL, Google Docs and
// OpenRouter adapters. cfg must already be validated.
func FromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	extractor, err := links.New(cfg.LinkPatterns...)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "link_patterns"), config.ErrInvalidConfig)
	}

	timeout := cfg.RequestTimeout()
	initial, maxBackoff := cfg.RetryInitialBackoff(), cfg.RetryMaxBackoff()

	ledgerClient := ledger.NewXRPLClient(cfg.LedgerEndpoint,
		ledger.WithTimeout(timeout),
		ledger.WithRatePerMinute(cfg.LedgerRatePerMinute),
		ledger.WithRetry(cfg.RetryBudget, initial, maxBackoff),
	)

	fetcher := docs.NewGoogleFetcher(
		docs.WithEndpoint(cfg.DocumentEndpoint),
		docs.WithToken(cfg.DocumentToken),
		docs.WithTimeout(timeout),
	)

	llmClient := llm.NewClient(cfg.ScoringAPIKey,
		llm.WithEndpoint(cfg.ScoringEndpoint),
		llm.WithModel(cfg.ScoringModel),
		llm.WithTimeout(timeout),
	)
	scorer := scoring.New(llmClient,
		scoring.WithToken(cfg.TokenCurrency),
		scoring.WithMaxEvidenceChars(cfg.MaxEvidenceChars),
		scoring.WithRetry(cfg.RetryBudget, initial, maxBackoff),
		scoring.WithRatePerMinute(cfg.ScoringRatePerMinute),
	)

	base := []Option{
		WithToken(cfg.TokenCurrency),
		WithIssuer(cfg.TokenIssuer),
		WithLedgerRange(cfg.StartLedger, cfg.EndLedger),
		WithPageLimit(cfg.PageLimit),
		WithModelName(llmClient.Model()),
		WithConcurrency(cfg.ConcurrencyLimit),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithMergeWindow(cfg.FragmentMergeWindow()),
		WithExtractor(extractor),
		WithResolverOptions(
			resolver.WithRetry(cfg.RetryBudget, initial, maxBackoff),
			resolver.WithRatePerMinute(cfg.DocumentRatePerMinute),
		),
		WithSnapshotWriter(snapshot.NewWriter(cfg.OutputDir, snapshot.WithFormat(snapshot.Format(cfg.SnapshotFormat)))),
		WithWarmCache(cfg.WarmCache),
	}
	return New(ledgerClient, fetcher, scorer, append(base, opts...)...), nil
}
