// Package sequential implements the sequential dependency-aware batch
// producers.
package sequential

import (
	"fmt"

	"github.com/gammazero/deque"

	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/internal/deptrack"
)

const (
	// Name is the name of the sequential dependency producer.
	Name = "sequential-dependency"

	// WindowedName is the name of the windowed sequential dependency
	// producer.
	WindowedName = "sequential-dependency-windowed"
)

// Orderer is a batch producer that scans the block in order, linking every
// transaction to its nearest conflicting predecessors.
//
// With a zero window every pairwise conflict in the block is discovered.
// With a positive window W, adding transaction i forgets the index
// contributions of transaction i-W, so conflicts are only discovered
// against the most recently added transactions.  Windowed batches may
// therefore contain conflicting transactions; relative order of any two
// transactions at most W-1 positions apart is still preserved.
type Orderer[T api.Transaction[K], K comparable] struct {
	tracker *deptrack.Tracker[T]
	index   *deptrack.KeyIndex[K]

	// window is the conflict window size, 0 for unbounded.
	window int
	// live are the indices of transactions still contributing to the
	// index, oldest first.
	live *deque.Deque[int32]

	evictions uint64
	predsBuf  []int32
}

// New creates a sequential dependency batch producer that discovers every
// conflict in the block.
func New[T api.Transaction[K], K comparable]() *Orderer[T, K] {
	return newOrderer[T, K](0)
}

// NewWindowed creates a sequential dependency batch producer that discovers
// conflicts only within a sliding window of the most recently added
// transactions.
func NewWindowed[T api.Transaction[K], K comparable](window int) (*Orderer[T, K], error) {
	if window < 1 {
		return nil, fmt.Errorf("orderer/sequential: window size must be positive, got %d", window)
	}
	return newOrderer[T, K](window), nil
}

func newOrderer[T api.Transaction[K], K comparable](window int) *Orderer[T, K] {
	return &Orderer[T, K]{
		tracker: deptrack.New[T](),
		index:   deptrack.NewKeyIndex[K](),
		window:  window,
		live:    deque.New[int32](),
	}
}

// Name is the name of the producer.
func (o *Orderer[T, K]) Name() string {
	if o.window > 0 {
		return WindowedName
	}
	return Name
}

// Add introduces the next chunk of the block's transactions, in block
// order, into the producer.
func (o *Orderer[T, K]) Add(txns []T) {
	for _, tx := range txns {
		idx := int32(o.tracker.Size())

		if o.window > 0 {
			for o.live.Len() >= o.window {
				o.evict(o.live.PopFront())
			}
		}

		preds := o.index.Visit(idx, tx.ReadSet(), tx.WriteSet(), o.predsBuf[:0])
		o.predsBuf = preds
		o.tracker.Append(tx, preds)

		if o.window > 0 {
			o.live.PushBack(idx)
		}
	}
}

func (o *Orderer[T, K]) evict(idx int32) {
	tx := o.tracker.Tx(idx)
	o.index.Forget(idx, tx.ReadSet(), tx.WriteSet())
	o.evictions++
}

// Pending returns the number of added transactions not yet committed.
func (o *Orderer[T, K]) Pending() int {
	return o.tracker.Pending()
}

// Selected returns the number of transactions ready to be committed.
func (o *Orderer[T, K]) Selected() int {
	return o.tracker.Selected()
}

// CommitPrefix commits the n first ready transactions as a single batch
// passed to emit.
func (o *Orderer[T, K]) CommitPrefix(n int, emit func([]T) error) error {
	return o.tracker.CommitPrefix(n, emit)
}

// Stats returns the producer's statistics.
func (o *Orderer[T, K]) Stats() api.ProducerStats {
	return api.ProducerStats{
		Edges:     o.tracker.Edges(),
		Evictions: o.evictions,
	}
}

var _ api.BatchProducer[api.Transaction[int]] = (*Orderer[api.Transaction[int], int])(nil)
