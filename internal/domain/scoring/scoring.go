// Package scoring turns an author bundle into a validated credibility score.
package scoring

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Reply is the scoring service's answer.
type Reply struct {
	Score     float64
	Rationale string
}

// Client submits an evidence summary to a scoring service.
type Client interface {
	RequestScore(ctx context.Context, summary string) (Reply, error)
}

// Scorer produces one terminal score per bundle. It never fails; problems
// are reported as unscored results.
type Scorer interface {
	Score(ctx context.Context, b model.AuthorBundle) model.CredibilityScore
}

// Option applies a configuration option to the CredibilityScorer.
type Option func(*CredibilityScorer)

// WithToken sets the token symbol named in the prompt.
func WithToken(token string) Option {
	return func(s *CredibilityScorer) {
		if token != "" {
			s.token = token
		}
	}
}

// WithMaxEvidenceChars caps the summary length in runes.
func WithMaxEvidenceChars(n int) Option {
	return func(s *CredibilityScorer) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithRetry sets the retry budget and backoff bounds for transient failures.
func WithRetry(budget int, initial, maxInterval time.Duration) Option {
	return func(s *CredibilityScorer) {
		if budget >= 0 {
			s.retryBudget = budget
		}
		if initial > 0 {
			s.initialBackoff = initial
		}
		if maxInterval > 0 {
			s.maxBackoff = maxInterval
		}
	}
}

// WithRatePerMinute paces scoring requests; 0 or less disables pacing.
func WithRatePerMinute(n int) Option {
	return func(s *CredibilityScorer) {
		if n > 0 {
			s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		} else {
			s.limiter = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *CredibilityScorer) {
		if l != nil {
			s.log = l
		}
	}
}

// CredibilityScorer implements Scorer on top of a Client.
type CredibilityScorer struct {
	client         Client
	token          string
	maxChars       int
	retryBudget    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *rate.Limiter
	log            logger.Logger
}

// New creates a CredibilityScorer with configuration options.
func New(client Client, opts ...Option) *CredibilityScorer {
	s := &CredibilityScorer{
		client:         client,
		token:          "PFT",
		maxChars:       60_000,
		retryBudget:    3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		log:            logger.Get().Named("scorer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that a reply carries a usable score.
func Validate(r Reply) error {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return errors.Mark(errors.Newf("score %v is not finite", r.Score), ErrInvalidReply)
	}
	if r.Score < 0 || r.Score > 1 {
		return errors.Mark(errors.Newf("score %v outside [0,1]", r.Score), ErrInvalidReply)
	}
	return nil
}

// Score evaluates one bundle. Transient failures are retried up to the
// budget; anything else yields an unscored result with the reason.
func (s *CredibilityScorer) Score(ctx context.Context, b model.AuthorBundle) model.CredibilityScore {
	if err := ctx.Err(); err != nil {
		return s.unscored(ctx, b, kindCancelled, "cancelled: "+errors.Reason(err))
	}

	summary := Summary(s.token, b, s.maxChars)
	attempts := 0
	op := func() (Reply, error) {
		attempts++
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return Reply{}, backoff.Permanent(errors.Mark(err, errPacing))
			}
		}
		start := time.Now()
		reply, err := s.client.RequestScore(ctx, summary)
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			if errors.Is(err, ErrTransient) && ctx.Err() == nil {
				return Reply{}, err
			}
			return Reply{}, backoff.Permanent(err)
		}
		if err := Validate(reply); err != nil {
			return Reply{}, backoff.Permanent(err)
		}
		return reply, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.MaxInterval = s.maxBackoff

	reply, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(s.retryBudget+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RecordScoringRetry()
			s.log.Debug(ctx, "retrying score request",
				logger.String("author", b.Author),
				logger.Duration("wait", wait),
				logger.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return s.unscored(ctx, b, kindCancelled, "cancelled: "+errors.Reason(ctx.Err()))
		}
		if errors.Is(err, errPacing) {
			return s.unscored(ctx, b, kindCancelled, "cancelled: "+errors.Reason(err))
		}
		kind := classify(err)
		var reason string
		switch kind {
		case kindTransient:
			reason = "retries exhausted after " + strconv.Itoa(attempts) + " attempts: " + errors.Reason(err)
		case kindInvalid:
			reason = "invalid reply: " + errors.Reason(err)
		default:
			reason = "scoring failed: " + errors.Reason(err)
		}
		return s.unscored(ctx, b, kind, reason)
	}

	metrics.RecordAuthorScored(string(model.StatusScored))
	score := base(b)
	score.Score = reply.Score
	score.Status = model.StatusScored
	score.Rationale = reply.Rationale
	return score
}

func (s *CredibilityScorer) unscored(ctx context.Context, b model.AuthorBundle, kind, reason string) model.CredibilityScore {
	metrics.RecordScoringError(kind)
	metrics.RecordAuthorScored(string(model.StatusUnscored))
	s.log.Warn(ctx, "author left unscored",
		logger.String("author", b.Author),
		logger.String("kind", kind),
		logger.String("reason", reason))
	return Unscored(b, reason)
}

// Unscored builds the unscored result for b with reason as rationale.
func Unscored(b model.AuthorBundle, reason string) model.CredibilityScore {
	score := base(b)
	score.Score = model.Unscored
	score.Status = model.StatusUnscored
	score.Rationale = reason
	return score
}

func base(b model.AuthorBundle) model.CredibilityScore {
	first, last := b.FirstMemoAt(), b.LastMemoAt()
	return model.CredibilityScore{
		Author:        b.Author,
		EvidenceCount: EvidenceCount(b),
		MemoCount:     len(b.Memos),
		FirstMemoAt:   first,
		LastMemoAt:    last,
		TimespanDays:  model.TimespanDays(first, last),
	}
}
