// Package aggregate groups decoded memos into per-author bundles with merged
// documents and resolved links.
package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Resolver turns a normalized URL into content. Implementations report
// failures as content, never as errors.
type Resolver interface {
	Resolve(ctx context.Context, url string) model.ResolvedContent
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithExtractor sets the link extractor.
func WithExtractor(e *links.Extractor) Option {
	return func(a *Aggregator) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithMergeWindow sets the fragment merge window. See MergeFragments.
func WithMergeWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		a.window = d
	}
}

// WithConcurrency bounds parallel link resolutions.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// Aggregator builds author bundles.
type Aggregator struct {
	extractor *links.Extractor
	window    time.Duration
	limit     int
	log       logger.Logger
}

// New creates an Aggregator with the default Google Docs extractor, a ten
// minute merge window and four parallel resolutions.
func New(opts ...Option) *Aggregator {
	e, _ := links.New()
	a := &Aggregator{
		extractor: e,
		window:    10 * time.Minute,
		limit:     4,
		log:       logger.Get().Named("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Group splits memos by author, each group sorted by sequence. Authors are
// returned in ascending order.
func Group(memos []model.MemoRecord) ([]string, map[string][]model.MemoRecord) {
	byAuthor := make(map[string][]model.MemoRecord)
	for _, m := range memos {
		byAuthor[m.Author] = append(byAuthor[m.Author], m)
	}
	authors := make([]string, 0, len(byAuthor))
	for author, ms := range byAuthor {
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Sequence < ms[j].Sequence })
		authors = append(authors, author)
	}
	sort.Strings(authors)
	return authors, byAuthor
}

// Aggregate returns one bundle per distinct author, sorted by author. Links
// found in merged documents are resolved through r with bounded parallelism.
func (a *Aggregator) Aggregate(ctx context.Context, memos []model.MemoRecord, r Resolver) []model.AuthorBundle {
	authors, byAuthor := Group(memos)

	bundles := make([]model.AuthorBundle, 0, len(authors))
	var urls []string
	seenURL := make(map[string]struct{})
	for _, author := range authors {
		ms := byAuthor[author]
		docs := MergeFragments(ms, a.window)
		metrics.RecordDocumentsMerged(len(docs))

		b := model.AuthorBundle{Author: author, Memos: ms, Documents: docs}
		inBundle := make(map[string]struct{})
		for _, d := range docs {
			for _, ref := range a.extractor.ExtractText(author, d.Sequences[0], d.Text) {
				if _, dup := inBundle[ref.URL]; dup {
					continue
				}
				inBundle[ref.URL] = struct{}{}
				b.Links = append(b.Links, ref)
				if _, dup := seenURL[ref.URL]; !dup {
					seenURL[ref.URL] = struct{}{}
					urls = append(urls, ref.URL)
				}
			}
		}
		bundles = append(bundles, b)
	}
	metrics.UpdateAuthorsTotal(len(bundles))

	resolved := a.resolveAll(ctx, urls, r)
	for i := range bundles {
		bundles[i].ResolvedLinks = make(map[string]model.ResolvedContent, len(bundles[i].Links))
		for _, ref := range bundles[i].Links {
			bundles[i].ResolvedLinks[ref.URL] = resolved[ref.URL]
		}
	}

	a.log.Info(ctx, "aggregated memos",
		logger.Int("memos", len(memos)),
		logger.Int("authors", len(bundles)),
		logger.Int("links", len(urls)))
	return bundles
}

func (a *Aggregator) resolveAll(ctx context.Context, urls []string, r Resolver) map[string]model.ResolvedContent {
	out := make(map[string]model.ResolvedContent, len(urls))
	if r == nil || len(urls) == 0 {
		for _, u := range urls {
			out[u] = model.ResolvedContent{URL: u, Status: model.ContentFailed, Reason: "no resolver"}
		}
		return out
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(a.limit)
	for _, u := range urls {
		g.Go(func() error {
			rc := r.Resolve(ctx, u)
			mu.Lock()
			out[u] = rc
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
