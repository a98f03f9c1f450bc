package resolver

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/memocred/pkg/logger"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetry sets how many times a transient failure is retried and the
// exponential backoff bounds between attempts.
func WithRetry(budget int, initial, maxInterval time.Duration) Option {
	return func(r *Resolver) {
		if budget >= 0 {
			r.retryBudget = budget
		}
		if initial > 0 {
			r.initialBackoff = initial
		}
		if maxInterval > 0 {
			r.maxBackoff = maxInterval
		}
	}
}

// WithRatePerMinute paces fetches; 0 or less disables pacing.
func WithRatePerMinute(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		} else {
			r.limiter = nil
		}
	}
}

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}
