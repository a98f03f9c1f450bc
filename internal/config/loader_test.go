package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/memocred/internal/config"
	"github.com/okian/memocred/pkg/errors"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("MEMOCRED_SCORING_API_KEY", "sk-test")
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.ScoringAPIKey, convey.ShouldEqual, "sk-test")
				convey.So(cfg.PageLimit, convey.ShouldEqual, 400)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "./out")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MEMOCRED_PAGE_LIMIT", "200")
			_ = os.Setenv("MEMOCRED_CONCURRENCY_LIMIT", "8")
			_ = os.Setenv("MEMOCRED_WARM_CACHE", "true")
			_ = os.Setenv("MEMOCRED_FRAGMENT_MERGE_WINDOW_MS", "-1")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageLimit, convey.ShouldEqual, 200)
				convey.So(cfg.ConcurrencyLimit, convey.ShouldEqual, 8)
				convey.So(cfg.WarmCache, convey.ShouldBeTrue)
				convey.So(cfg.FragmentMergeWindowMS, convey.ShouldEqual, -1)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# token under analysis
token_currency: "PFT"
start_ledger: 90000000
snapshot_format: yaml
link_patterns:
  - "https://example\\.org/notes/[a-z0-9]+"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MEMOCRED_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StartLedger, convey.ShouldEqual, 90_000_000)
				convey.So(cfg.SnapshotFormat, convey.ShouldEqual, "yaml")
				convey.So(cfg.LinkPatterns, convey.ShouldResemble, []string{`https://example\.org/notes/[a-z0-9]+`})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
page_limit: 100
concurrency_limit: 2
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MEMOCRED_CONFIG", tmpFile)
			_ = os.Setenv("MEMOCRED_CONCURRENCY_LIMIT", "6")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageLimit, convey.ShouldEqual, 100)
				convey.So(cfg.ConcurrencyLimit, convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MEMOCRED_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("MEMOCRED_CONFIG", "/non/existent/memocred.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a value violates its constraint", func() {
			_ = os.Setenv("MEMOCRED_SNAPSHOT_FORMAT", "xml")
			_ = os.Setenv("MEMOCRED_CONCURRENCY_LIMIT", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error naming the keys", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "snapshot_format must be one of: json yaml")
				convey.So(err.Error(), convey.ShouldContainSubstring, "concurrency_limit must be at least 1")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a link pattern does not compile", func() {
			tmpFile := createTempConfigFile("link_patterns:\n  - \"([a-z\"\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MEMOCRED_CONFIG", tmpFile)

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the backoff cap is below the initial interval", func() {
			_ = os.Setenv("MEMOCRED_RETRY_INITIAL_BACKOFF_MS", "5000")
			_ = os.Setenv("MEMOCRED_RETRY_MAX_BACKOFF_MS", "100")

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "retry_max_backoff_ms")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"MEMOCRED_CONFIG",
		"MEMOCRED_SCORING_API_KEY",
		"MEMOCRED_PAGE_LIMIT",
		"MEMOCRED_CONCURRENCY_LIMIT",
		"MEMOCRED_WARM_CACHE",
		"MEMOCRED_FRAGMENT_MERGE_WINDOW_MS",
		"MEMOCRED_SNAPSHOT_FORMAT",
		"MEMOCRED_RETRY_INITIAL_BACKOFF_MS",
		"MEMOCRED_RETRY_MAX_BACKOFF_MS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "memocred-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
