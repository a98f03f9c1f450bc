package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/memocred/internal/adapters/mq/queue"
	"github.com/okian/memocred/internal/adapters/mq/worker"
	"github.com/okian/memocred/internal/adapters/repository"
	"github.com/okian/memocred/internal/domain/model"
	logging "github.com/okian/memocred/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
	delay  time.Duration
}

func newMockScorer() *mockScorer {
	return &mockScorer{scores: make(map[string]float64)}
}

func (ms *mockScorer) Score(ctx context.Context, b model.AuthorBundle) model.CredibilityScore {
	ms.mu.Lock()
	ms.calls++
	v, ok := ms.scores[b.Author]
	delay := ms.delay
	ms.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.CredibilityScore{Author: b.Author, Score: model.Unscored, Status: model.StatusUnscored, Rationale: "cancelled: " + ctx.Err().Error()}
		}
	}
	if !ok {
		return model.CredibilityScore{Author: b.Author, Score: model.Unscored, Status: model.StatusUnscored, Rationale: "scoring failed: no reply"}
	}
	return model.CredibilityScore{Author: b.Author, Score: v, Status: model.StatusScored, MemoCount: len(b.Memos)}
}

func (ms *mockScorer) set(author string, v float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.scores[author] = v
}

func (ms *mockScorer) callCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.calls
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, model.CredibilityScore) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		scorer := newMockScorer()
		store := repository.NewMemoryStore()

		convey.Convey("When a scored and an unscored bundle are processed", func() {
			scorer.set("rA", 0.8)
			var notified []string
			w := worker.NewInMemoryWorker(q, scorer, store,
				worker.WithName("test-worker"),
				worker.WithOnScored(func(s model.CredibilityScore) { notified = append(notified, s.Author) }),
			)

			ctx := context.Background()
			_ = q.Enqueue(ctx, model.AuthorBundle{Author: "rA", Memos: make([]model.MemoRecord, 2)})
			_ = q.Enqueue(ctx, model.AuthorBundle{Author: "rB"})
			_ = q.Close()

			w.Run(ctx)

			convey.Convey("Then both terminal scores should be recorded", func() {
				a, err := store.Get(ctx, "rA")
				convey.So(err, convey.ShouldBeNil)
				convey.So(a.Score, convey.ShouldEqual, 0.8)
				convey.So(a.MemoCount, convey.ShouldEqual, 2)

				b, err := store.Get(ctx, "rB")
				convey.So(err, convey.ShouldBeNil)
				convey.So(b.Scored(), convey.ShouldBeFalse)
				convey.So(b.Score, convey.ShouldEqual, model.Unscored)

				convey.So(notified, convey.ShouldResemble, []string{"rA", "rB"})
			})
		})

		convey.Convey("When the recorder fails", func() {
			w := worker.NewInMemoryWorker(q, scorer, failingRecorder{})
			_ = q.Enqueue(context.Background(), model.AuthorBundle{Author: "rA"})
			_ = q.Close()

			convey.Convey("Then the worker should keep running until the queue is drained", func() {
				done := make(chan struct{})
				go func() {
					w.Run(context.Background())
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
				convey.So(scorer.callCount(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down an idle worker", func() {
			w := worker.NewInMemoryWorker(q, scorer, store)
			go w.Run(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.Convey("Then it should stop promptly and be idempotent", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, scorer, store)
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then Run should return", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		scorer := newMockScorer()
		store := repository.NewMemoryStore()

		convey.Convey("When more bundles than workers are queued", func() {
			pool := worker.NewPool(3, q, scorer, store)
			ctx := context.Background()
			pool.Start(ctx)

			for i := 0; i < 20; i++ {
				author := fmt.Sprintf("r%02d", i)
				scorer.set(author, float64(i)/20)
				convey.So(q.Enqueue(ctx, model.AuthorBundle{Author: author}), convey.ShouldBeNil)
			}
			_ = q.Close()
			pool.Wait()

			convey.Convey("Then every author should be scored exactly once", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 3)
				convey.So(store.Count(ctx), convey.ShouldEqual, 20)
				convey.So(scorer.callCount(), convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When the pool is created with a non-positive count", func() {
			pool := worker.NewPool(0, q, scorer, store)

			convey.Convey("Then it should default to at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When the pool is shut down with slow scoring", func() {
			scorer.delay = 5 * time.Second
			pool := worker.NewPool(2, q, scorer, store)
			runCtx, cancelRun := context.WithCancel(context.Background())
			defer cancelRun()
			pool.Start(runCtx)
			_ = q.Enqueue(runCtx, model.AuthorBundle{Author: "rSlow"})
			time.Sleep(20 * time.Millisecond)
			cancelRun()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.Convey("Then it should close the queue and return", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
