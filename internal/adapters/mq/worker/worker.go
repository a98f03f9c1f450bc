// Package worker drains author bundles from the queue and scores them
// concurrently.
package worker

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/memocred/internal/adapters/mq/queue"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Bundle abstracts what workers read off the queue.
type Bundle = queue.Bundle

// Recorder stores the terminal score of an author.
type Recorder interface {
	Record(ctx context.Context, score model.CredibilityScore) (bool, error)
}

// Scorer computes the credibility score of a bundle. It never fails; a
// failure is reported as an unscored result.
type Scorer interface {
	Score(ctx context.Context, b model.AuthorBundle) model.CredibilityScore
}

// Queue defines how workers receive bundles.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Bundle
}

// Worker processes bundles until the queue is drained or ctx is done.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	scorer   Scorer
	recorder Recorder
	name     string
	onScored func(model.CredibilityScore)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		recorder: recorder,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when the queue channel is closed,
// ctx is done or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	bundles := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-bundles:
			if !ok {
				return
			}
			if err := w.process(ctx, b); err != nil {
				w.logger.Error(ctx, "error processing bundle",
					logger.String("author", b.Author), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after the bundle in flight, if any.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return errors.Wrap(ctx.Err(), "shutdown timed out")
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, b Bundle) error { //nolint:gocritic // hugeParam: bundles are passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	score := w.scorer.Score(ctx, b)

	recorded, err := w.recorder.Record(ctx, score)
	if err != nil {
		return errors.Wrapf(err, "record score for %s", b.Author)
	}
	if !recorded {
		w.logger.Debug(ctx, "author already has a score", logger.String("author", b.Author))
		return nil
	}
	if w.onScored != nil {
		w.onScored(score)
	}
	return nil
}

// Pool manages multiple workers reading the same queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers. A count below one uses the number of
// CPUs. opts are applied to every worker.
func NewPool(workerCount int, q Queue, scorer Scorer, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, scorer, recorder, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs all workers in the background.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	for _, w := range p.workers {
		<-w.done
	}
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue, if it can be closed, and waits for the workers
// until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut bool
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return errors.Wrap(ctx.Err(), "pool shutdown")
	}
	return nil
}
