// Package dedupe tracks memo fields that were already decoded so that
// overlapping ledger pages never yield the same memo twice.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
)

// Deduper records seen memo keys to ensure at-most-once decoding.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it can be decoded again.
	Unrecord(ctx context.Context, key string)

	// Reset forgets every key.
	Reset()

	Size() int64
}

// Key identifies one memo field of a transaction.
func Key(txHash string, memoIndex int) string {
	return txHash + "#" + strconv.Itoa(memoIndex)
}

// inMemoryDeduper keeps keys in a map. In bounded mode (maxSize > 0) an
// insertion-ordered list evicts the oldest key once the cap is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // nil when unbounded
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.Reset()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.order == nil {
		d.seen[key] = nil
		return false
	}
	if d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	if el != nil {
		d.order.Remove(el)
	}
}

func (d *inMemoryDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen = make(map[string]*list.Element)
	if d.maxSize > 0 {
		d.order = list.New()
	}
}

// Size returns the current number of keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
