// Package queue hands author bundles from the aggregation stage to the
// scoring workers.
//
// The in-memory queue is bounded: Enqueue blocks while it is full so a slow
// scorer applies backpressure to the producer.
package queue

import (
	"context"
	"sync"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/metrics"
)

const defaultQueueCapacity = 256

// Bundle is the payload flowing through the queue.
type Bundle = model.AuthorBundle

// Queue provides bounded enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a bundle, waiting for room until ctx is done.
	Enqueue(ctx context.Context, b Bundle) error

	// TryEnqueue adds a bundle without waiting. Returns false if the queue is
	// full or closed.
	TryEnqueue(b Bundle) bool

	// Dequeue returns a channel that receives bundles as they become
	// available. The channel is closed once the queue is closed and drained,
	// or when ctx is done.
	Dequeue(ctx context.Context) <-chan Bundle

	// Len returns the current number of queued bundles.
	Len() int

	// Close stops accepting bundles. Queued bundles remain readable.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	bundles  chan Bundle
	capacity int

	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.bundles = make(chan Bundle, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, b Bundle) error { //nolint:gocritic // hugeParam: bundles are passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}

	select {
	case q.bundles <- b:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.bundles))
		return nil
	case <-q.done:
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return errors.Wrap(context.Cause(ctx), "enqueue bundle")
	}
}

func (q *InMemoryQueue) TryEnqueue(b Bundle) bool { //nolint:gocritic // hugeParam: bundles are passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.bundles <- b:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.bundles))
		return true
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Bundle {
	out := make(chan Bundle)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-q.bundles:
				if !ok {
					return
				}
				select {
				case out <- b:
					metrics.RecordQueueDequeue()
					metrics.UpdateQueueSize(len(q.bundles))
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) Len() int {
	size := len(q.bundles)
	metrics.UpdateQueueSize(size)
	return size
}

// Close is idempotent. Producers blocked in Enqueue return ErrClosed.
func (q *InMemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.bundles)
	})
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
