// Package config defines pipeline configuration and its loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Durations are stored as milliseconds and exposed through accessors.
// - External errors are marked with this package's sentinels.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// Ledger source.
	LedgerEndpoint      string `koanf:"ledger_endpoint" validate:"required,url"`
	TokenCurrency       string `koanf:"token_currency" validate:"required"`
	TokenIssuer         string `koanf:"token_issuer"`
	StartLedger         int64  `koanf:"start_ledger" validate:"gte=-1"`
	EndLedger           int64  `koanf:"end_ledger" validate:"gte=-1"`
	PageLimit           int    `koanf:"page_limit" validate:"min=1"`
	LedgerRatePerMinute int    `koanf:"ledger_rate_per_minute" validate:"gte=0"`

	// Scoring service.
	ScoringEndpoint      string `koanf:"scoring_endpoint" validate:"required,url"`
	ScoringAPIKey        string `koanf:"scoring_api_key" validate:"required"`
	ScoringModel         string `koanf:"scoring_model" validate:"required"`
	ScoringRatePerMinute int    `koanf:"scoring_rate_per_minute" validate:"gte=0"`

	// Document fetch.
	DocumentEndpoint      string `koanf:"document_endpoint" validate:"required,url"`
	DocumentToken         string `koanf:"document_token"`
	DocumentRatePerMinute int    `koanf:"document_rate_per_minute" validate:"gte=0"`

	// ConcurrencyLimit bounds parallel external calls (scoring workers and link fetches).
	ConcurrencyLimit int `koanf:"concurrency_limit" validate:"min=1"`

	// RetryBudget is the number of retries after the first attempt of a transient failure.
	RetryBudget           int `koanf:"retry_budget" validate:"gte=0"`
	RetryInitialBackoffMS int `koanf:"retry_initial_backoff_ms" validate:"gte=0"`
	RetryMaxBackoffMS     int `koanf:"retry_max_backoff_ms" validate:"gtefield=RetryInitialBackoffMS"`
	RequestTimeoutMS      int `koanf:"request_timeout_ms" validate:"min=1"`

	// FragmentMergeWindowMS: 0 merges on sequence adjacency only, negative disables merging.
	FragmentMergeWindowMS int64 `koanf:"fragment_merge_window_ms"`
	MaxEvidenceChars      int   `koanf:"max_evidence_chars" validate:"min=1"`

	// LinkPatterns adds regular expressions recognized as document links.
	LinkPatterns []string `koanf:"link_patterns"`

	// Output.
	OutputDir      string `koanf:"output_dir" validate:"required"`
	SnapshotFormat string `koanf:"snapshot_format" validate:"oneof=json yaml"`
	WarmCache      bool   `koanf:"warm_cache"`

	// MetricsAddr enables the /healthz and /stats listener when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// QueueSize bounds the in-memory scoring queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// DedupeSize caps the memo dedupe set; <=0 means unbounded.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LedgerEndpoint:        "https://xrplcluster.com",
		TokenCurrency:         "PFT",
		TokenIssuer:           "rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW",
		StartLedger:           83_999_999,
		EndLedger:             0,
		PageLimit:             400,
		LedgerRatePerMinute:   600,
		ScoringEndpoint:       "https://openrouter.ai/api/v1",
		ScoringModel:          "anthropic/claude-3.5-haiku",
		ScoringRatePerMinute:  60,
		DocumentEndpoint:      "https://docs.google.com",
		ConcurrencyLimit:      4,
		RetryBudget:           3,
		RetryInitialBackoffMS: 500,
		RetryMaxBackoffMS:     10_000,
		RequestTimeoutMS:      60_000,
		FragmentMergeWindowMS: 600_000,
		MaxEvidenceChars:      60_000,
		LinkPatterns:          []string{},
		OutputDir:             "./out",
		SnapshotFormat:        "json",
		QueueSize:             10_000,
		DedupeSize:            0,
	}
}

// RequestTimeout is the per-call HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// RetryInitialBackoff is the first backoff interval.
func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMS) * time.Millisecond
}

// RetryMaxBackoff caps the backoff interval.
func (c *Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMS) * time.Millisecond
}

// FragmentMergeWindow returns the merge window; negative disables merging.
func (c *Config) FragmentMergeWindow() time.Duration {
	return time.Duration(c.FragmentMergeWindowMS) * time.Millisecond
}
