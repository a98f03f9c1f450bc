// Package app wires the pipeline stages into one run: ledger collection,
// memo decoding, author aggregation with link resolution, concurrent scoring
// and snapshot emission.
package app

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/memocred/internal/adapters/ledger"
	"github.com/okian/memocred/internal/adapters/mq/queue"
	"github.com/okian/memocred/internal/adapters/mq/worker"
	"github.com/okian/memocred/internal/adapters/repository"
	"github.com/okian/memocred/internal/adapters/snapshot"
	"github.com/okian/memocred/internal/domain/aggregate"
	"github.com/okian/memocred/internal/domain/decoder"
	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/internal/domain/resolver"
	"github.com/okian/memocred/internal/domain/scoring"
	"github.com/okian/memocred/internal/domain/types"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Result is the outcome of a run.
type Result struct {
	RunID       string
	State       State
	Memos       []model.MemoRecord
	Bundles     []model.AuthorBundle
	Scores      []model.CredibilityScore // sorted by author
	DecodeStats decoder.Stats

	MemoSnapshotPath        string
	CredibilitySnapshotPath string
}

// Stats is a point-in-time view of a run for the /stats endpoint.
type Stats struct {
	RunID        string `json:"run_id"`
	State        string `json:"state"`
	Transactions int    `json:"transactions"`
	Memos        int    `json:"memos"`
	Authors      int    `json:"authors"`
	Scored       int64  `json:"scored"`
	Unscored     int64  `json:"unscored"`
	QueueLength  int    `json:"queue_length"`
	CachedLinks  int    `json:"cached_links"`
}

// Pipeline runs the memo credibility workflow. A Pipeline runs once.
type Pipeline struct {
	ledger  ledger.Client
	fetcher resolver.Fetcher
	scorer  scoring.Scorer
	writer  *snapshot.Writer

	token         string
	issuer        string
	startLedger   int64
	endLedger     int64
	pageLimit     int
	modelName     string
	concurrency   int
	queueSize     int
	dedupeSize    int
	mergeWindow   time.Duration
	extractor     *links.Extractor
	resolverOpts  []resolver.Option
	warmCache     bool
	shutdownGrace time.Duration

	runID    string
	mu       sync.RWMutex
	state    State
	txCount  int
	memos    int
	authors  int
	scored   atomic.Int64
	unscored atomic.Int64
	queue    *queue.InMemoryQueue
	resolver *resolver.Resolver
	store    repository.Store

	log logger.Logger
}

// New creates a pipeline over its three collaborators.
func New(ledgerClient ledger.Client, fetcher resolver.Fetcher, scorer scoring.Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		ledger:        ledgerClient,
		fetcher:       fetcher,
		scorer:        scorer,
		token:         "PFT",
		startLedger:   -1,
		pageLimit:     400,
		concurrency:   4,
		queueSize:     10000,
		mergeWindow:   10 * time.Minute,
		shutdownGrace: 5 * time.Second,
		runID:         uuid.NewString(),
		state:         StateInit,
		log:           logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		p.writer = snapshot.NewWriter("out")
	}
	if p.extractor == nil {
		p.extractor, _ = links.New()
	}
	p.log = p.log.With(logger.String("run_id", p.runID))
	metrics.UpdatePipelineState(string(StateInit), allStates)
	return p
}

// RunID identifies this run in logs.
func (p *Pipeline) RunID() string { return p.runID }

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Stats returns progress counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Stats{
		RunID:        p.runID,
		State:        string(p.state),
		Transactions: p.txCount,
		Memos:        p.memos,
		Authors:      p.authors,
		Scored:       p.scored.Load(),
		Unscored:     p.unscored.Load(),
	}
	if p.queue != nil {
		s.QueueLength = p.queue.Len()
	}
	if p.resolver != nil {
		s.CachedLinks = p.resolver.Len()
	}
	return s
}

// TopScores returns up to n scored authors, best first. It is empty until
// scoring starts.
func (p *Pipeline) TopScores(ctx context.Context, n int) []model.CredibilityScore {
	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()
	if store == nil {
		return nil
	}
	return store.Ranked(ctx, n)
}

// AuthorScore returns the recorded score of author.
func (p *Pipeline) AuthorScore(ctx context.Context, author string) (model.CredibilityScore, error) {
	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()
	if store == nil {
		return model.CredibilityScore{}, errors.Wrapf(repository.ErrNotFound, "author %s", author)
	}
	return store.Get(ctx, author)
}

func (p *Pipeline) transition(ctx context.Context, to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	metrics.UpdatePipelineState(string(to), allStates)
	p.log.Info(ctx, "pipeline state changed", logger.String("from", string(from)), logger.String("to", string(to)))
}

func (p *Pipeline) fail(ctx context.Context, res Result, err error) (Result, error) {
	p.transition(ctx, StateFailed)
	res.State = StateFailed
	p.log.Error(ctx, "pipeline failed", logger.Error(err))
	return res, err
}

// Run executes the whole workflow. Per-memo, per-link and per-author failures
// surface as data; only ledger, snapshot and setup failures end the run in
// StateFailed with an error. Cancellation during scoring still emits
// snapshots, with unfinished authors unscored.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: p.runID}
	if p.State() != StateInit {
		return res, errors.Newf("pipeline %s already ran", p.runID)
	}

	// Decoding.
	p.transition(ctx, StateDecoding)
	stageStart := time.Now()
	txs, err := ledger.NewCollector(p.ledger, ledger.WithCollectorLogger(p.log)).Collect(ctx, ledger.Query{
		Account:   p.issuer,
		MinLedger: p.startLedger,
		MaxLedger: p.endLedger,
		Limit:     p.pageLimit,
	})
	if err != nil {
		return p.fail(ctx, res, errors.Wrap(err, "collect ledger transactions"))
	}
	dec := decoder.New(
		decoder.WithCurrency(p.token),
		decoder.WithIssuer(p.issuer),
		decoder.WithDedupeSize(p.dedupeSize),
		decoder.WithLogger(p.log),
	)
	res.Memos, res.DecodeStats = dec.Collect(txs)
	p.mu.Lock()
	p.txCount, p.memos = len(txs), len(res.Memos)
	p.mu.Unlock()
	metrics.RecordStageDuration(string(StateDecoding), msSince(stageStart))
	p.log.Info(ctx, "memos decoded",
		logger.Int("transactions", len(txs)),
		logger.Int("memos", len(res.Memos)),
		logger.Int("duplicates", res.DecodeStats.Duplicates),
		logger.Int("failures", res.DecodeStats.FailureCount()))

	// Aggregating.
	p.transition(ctx, StateAggregating)
	stageStart = time.Now()
	r := resolver.New(p.fetcher, p.resolverOpts...)
	p.mu.Lock()
	p.resolver = r
	p.mu.Unlock()
	defer r.Flush()
	if p.warmCache {
		p.seedCache(ctx, r)
	}
	agg := aggregate.New(
		aggregate.WithExtractor(p.extractor),
		aggregate.WithMergeWindow(p.mergeWindow),
		aggregate.WithConcurrency(p.concurrency),
		aggregate.WithLogger(p.log),
	)
	res.Bundles = agg.Aggregate(ctx, res.Memos, r)
	p.mu.Lock()
	p.authors = len(res.Bundles)
	p.mu.Unlock()
	metrics.RecordStageDuration(string(StateAggregating), msSince(stageStart))

	// Scoring.
	p.transition(ctx, StateScoring)
	stageStart = time.Now()
	store := p.score(ctx, res.Bundles)
	res.Scores = store.All(ctx)
	metrics.RecordStageDuration(string(StateScoring), msSince(stageStart))

	// Emitting. Snapshots are written even when ctx was cancelled.
	p.transition(ctx, StateEmitting)
	stageStart = time.Now()
	emitCtx := context.WithoutCancel(ctx)
	res.MemoSnapshotPath, err = p.writer.WriteMemos(emitCtx, types.NewMemoSnapshot(p.token, res.Bundles))
	if err != nil {
		return p.fail(ctx, res, err)
	}
	res.CredibilitySnapshotPath, err = p.writer.WriteCredibility(emitCtx,
		types.NewCredibilitySnapshot(p.token, p.modelName, res.Scores))
	if err != nil {
		return p.fail(ctx, res, err)
	}
	metrics.RecordStageDuration(string(StateEmitting), msSince(stageStart))

	p.transition(ctx, StateDone)
	res.State = StateDone
	p.log.Info(ctx, "pipeline finished",
		logger.Int("authors", len(res.Bundles)),
		logger.Int64("scored", p.scored.Load()),
		logger.Int64("unscored", p.unscored.Load()))
	return res, nil
}

// score runs the worker pool over bundles and guarantees one terminal score
// per author in the returned store.
func (p *Pipeline) score(ctx context.Context, bundles []model.AuthorBundle) repository.Store {
	store := repository.NewMemoryStore()
	q := queue.NewInMemoryQueue(queue.WithCapacity(p.queueSize))
	p.mu.Lock()
	p.queue = q
	p.store = store
	p.mu.Unlock()

	pool := worker.NewPool(p.concurrency, q, p.scorer, store,
		worker.WithLogger(p.log),
		worker.WithOnScored(func(s model.CredibilityScore) {
			if s.Scored() {
				p.scored.Add(1)
			} else {
				p.unscored.Add(1)
			}
		}),
	)
	pool.Start(ctx)

	for _, b := range bundles {
		if err := q.Enqueue(ctx, b); err != nil {
			p.log.Warn(ctx, "stopped enqueueing bundles", logger.Error(err))
			break
		}
	}
	_ = q.Close()

	finished := make(chan struct{})
	go func() {
		pool.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownGrace)
		if err := pool.Shutdown(graceCtx); err != nil {
			p.log.Warn(ctx, "abandoning scoring workers", logger.Error(err))
		}
		cancel()
	}

	reason := "scoring failed: no result recorded"
	if ctx.Err() != nil {
		reason = "cancelled: " + errors.Reason(context.Cause(ctx))
	}
	for _, b := range bundles {
		recorded, err := store.Record(ctx, scoring.Unscored(b, reason))
		if err != nil {
			p.log.Error(ctx, "recording unscored author", logger.String("author", b.Author), logger.Error(err))
			continue
		}
		if recorded {
			p.unscored.Add(1)
		}
	}
	return store
}

// seedCache loads resolved links from the previous memo snapshot. A missing
// snapshot is not an error.
func (p *Pipeline) seedCache(ctx context.Context, r *resolver.Resolver) {
	path := p.writer.Path(snapshot.KindMemos, p.token)
	if _, err := os.Stat(path); err != nil {
		p.log.Debug(ctx, "no previous memo snapshot to warm the cache", logger.String("path", path))
		return
	}
	snap, err := snapshot.ReadMemos(path)
	if err != nil {
		p.log.Warn(ctx, "ignoring unreadable memo snapshot", logger.String("path", path), logger.Error(err))
		return
	}
	entries := snap.ResolvedContents()
	r.Seed(entries)
	p.log.Info(ctx, "resolver cache warmed", logger.Int("links", len(entries)))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
