package config_test

import (
	"testing"
	"time"

	"github.com/okian/memocred/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LedgerEndpoint, convey.ShouldEqual, "https://xrplcluster.com")
			convey.So(cfg.TokenCurrency, convey.ShouldEqual, "PFT")
			convey.So(cfg.StartLedger, convey.ShouldEqual, 83_999_999)
			convey.So(cfg.PageLimit, convey.ShouldEqual, 400)
			convey.So(cfg.ScoringModel, convey.ShouldEqual, "anthropic/claude-3.5-haiku")
			convey.So(cfg.ConcurrencyLimit, convey.ShouldEqual, 4)
			convey.So(cfg.RetryBudget, convey.ShouldEqual, 3)
			convey.So(cfg.SnapshotFormat, convey.ShouldEqual, "json")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
		})

		convey.Convey("Then the duration accessors should convert milliseconds", func() {
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.RetryInitialBackoff(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.RetryMaxBackoff(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.FragmentMergeWindow(), convey.ShouldEqual, 10*time.Minute)
		})

		convey.Convey("Then defaults without an API key should not validate", func() {
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "scoring_api_key is required")
		})

		convey.Convey("When an API key is set", func() {
			cfg.ScoringAPIKey = "sk-test"

			convey.Convey("Then it should validate", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
