package ledger

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/memocred/pkg/logger"
)

// Option configures an XRPLClient.
type Option func(*XRPLClient)

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *XRPLClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *XRPLClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRatePerMinute paces requests. Zero or less disables pacing.
func WithRatePerMinute(n int) Option {
	return func(c *XRPLClient) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithRetry sets the retry budget and backoff bounds for transient failures.
func WithRetry(budget int, initial, maxInterval time.Duration) Option {
	return func(c *XRPLClient) {
		if budget >= 0 {
			c.retryBudget = budget
		}
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxInterval > 0 {
			c.maxBackoff = maxInterval
		}
	}
}

// WithBreaker sets the number of consecutive failures that open the breaker
// and how long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *XRPLClient) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if openFor > 0 {
			c.breakerTimeout = openFor
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *XRPLClient) {
		if l != nil {
			c.log = l
		}
	}
}
