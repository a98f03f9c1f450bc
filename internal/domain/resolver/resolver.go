// Package resolver fetches linked document text once per URL and caches the
// outcome for the lifetime of a run.
package resolver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Fetcher retrieves the plain text behind a document URL.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Resolver is a run-scoped, lock-guarded cache in front of a Fetcher.
// Concurrent requests for one URL share a single fetch.
type Resolver struct {
	fetcher Fetcher

	mu    sync.RWMutex
	cache map[string]model.ResolvedContent
	group singleflight.Group

	limiter        *rate.Limiter
	retryBudget    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	log            logger.Logger
}

// New creates a Resolver around fetcher.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:        fetcher,
		cache:          make(map[string]model.ResolvedContent),
		retryBudget:    3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		now:            time.Now,
		log:            logger.Get().Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the content for url. Failures come back as content with
// StatusFailed; Resolve never returns an error.
func (r *Resolver) Resolve(ctx context.Context, url string) model.ResolvedContent {
	key := links.Normalize(url)
	if rc, ok := r.Lookup(key); ok {
		metrics.RecordResolverCacheHit()
		return rc
	}

	for {
		v, _, shared := r.group.Do(key, func() (interface{}, error) {
			if rc, ok := r.Lookup(key); ok {
				return outcome{rc: rc, cacheable: true}, nil
			}
			rc, cacheable := r.fetch(ctx, key)
			if cacheable {
				r.Store(rc)
			}
			return outcome{rc: rc, cacheable: cacheable}, nil
		})
		out := v.(outcome)
		// A shared fetch abandoned by a cancelled leader says nothing about
		// this caller; fetch again while our own context is live.
		if out.cacheable || !shared || ctx.Err() != nil {
			return out.rc
		}
	}
}

type outcome struct {
	rc        model.ResolvedContent
	cacheable bool
}

// fetch performs the retried fetch. Outcomes caused by the caller's
// cancellation are not cacheable.
func (r *Resolver) fetch(ctx context.Context, url string) (model.ResolvedContent, bool) {
	start := time.Now()
	attempts := 0

	op := func() (string, error) {
		attempts++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(errors.Mark(err, errPacing))
			}
		}
		text, err := r.fetcher.FetchText(ctx, url)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrTransient) && ctx.Err() == nil {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	b.MaxInterval = r.maxBackoff

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.retryBudget+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Debug(ctx, "retrying document fetch",
				logger.String("url", url),
				logger.Duration("wait", wait),
				logger.Error(err))
		}),
	)
	metrics.RecordDocumentFetchLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		if cause := cancelCause(ctx, err); cause != nil {
			return model.ResolvedContent{
				URL:    url,
				Status: model.ContentFailed,
				Reason: "cancelled: " + errors.Reason(cause),
			}, false
		}
		metrics.RecordLinkResolved(string(model.ContentFailed))
		r.log.Warn(ctx, "document fetch failed",
			logger.String("url", url),
			logger.Int("attempts", attempts),
			logger.Error(err))
		return model.ResolvedContent{
			URL:       url,
			FetchedAt: r.now().UTC(),
			Status:    model.ContentFailed,
			Reason:    reasonFor(err),
		}, true
	}

	metrics.RecordLinkResolved(string(model.ContentOK))
	return model.ResolvedContent{
		URL:       url,
		Text:      text,
		FetchedAt: r.now().UTC(),
		Status:    model.ContentOK,
	}, true
}

// Lookup returns the cached entry for a normalized URL.
func (r *Resolver) Lookup(url string) (model.ResolvedContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.cache[url]
	return rc, ok
}

// Store caches rc. A failure never replaces a cached success.
func (r *Resolver) Store(rc model.ResolvedContent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.cache[rc.URL]; ok && cur.OK() && !rc.OK() {
		return
	}
	r.cache[rc.URL] = rc
}

// Seed warms the cache, e.g. from a previous run's snapshot.
func (r *Resolver) Seed(entries []model.ResolvedContent) {
	for _, rc := range entries {
		rc.URL = links.Normalize(rc.URL)
		r.Store(rc)
	}
}

// Entries returns the cached entries sorted by URL.
func (r *Resolver) Entries() []model.ResolvedContent {
	r.mu.RLock()
	out := make([]model.ResolvedContent, 0, len(r.cache))
	for _, rc := range r.cache {
		out = append(out, rc)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Len returns the number of cached URLs.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Flush drops every cached entry.
func (r *Resolver) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]model.ResolvedContent)
}
