// Package parallel implements the parallel dependency-aware batch producer.
//
// The producer builds the same dependency structure as the sequential one,
// but splits every added chunk into contiguous per-worker segments.  Each
// segment discovers its internal conflicts independently; a sequential
// stitch then resolves the accesses whose predecessors lie before the
// segment and merges the per-segment key state into the global index.
// Dependency levels are assigned by relaxing the ready frontier in rounds,
// processing each round's frontier with worker-thread parallelism.
package parallel

import (
	"fmt"
	"sync/atomic"

	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/internal/deptrack"
)

// Name is the name of the parallel dependency producer.
const Name = "parallel-toposort"

// Frontiers smaller than this are relaxed inline, the pool dispatch costs
// more than it buys.
const minParallelFrontier = 256

// Orderer is a batch producer with the exact semantics of the sequential
// dependency producer, parallelized over a caller-provided worker pool.
//
// The pool must have at least one worker and must not be stopped while the
// producer is in use.
type Orderer[T api.Transaction[K], K comparable] struct {
	pool *workerpool.Pool

	tracker *deptrack.Tracker[T]
	index   *deptrack.KeyIndex[K]

	rounds uint64
}

// New creates a parallel dependency batch producer backed by the given
// worker pool.
func New[T api.Transaction[K], K comparable](pool *workerpool.Pool) (*Orderer[T, K], error) {
	if pool == nil {
		return nil, fmt.Errorf("orderer/parallel: no worker pool provided")
	}
	if pool.Size() == 0 {
		return nil, fmt.Errorf("orderer/parallel: worker pool has no workers")
	}
	return &Orderer[T, K]{
		pool:    pool,
		tracker: deptrack.New[T](),
		index:   deptrack.NewKeyIndex[K](),
	}, nil
}

// Name is the name of the producer.
func (o *Orderer[T, K]) Name() string {
	return Name
}

// Add introduces the next chunk of the block's transactions, in block
// order, into the producer.
func (o *Orderer[T, K]) Add(txns []T) {
	if len(txns) == 0 {
		return
	}

	base := int32(o.tracker.Size())
	segments := splitSegments(len(txns), int(o.pool.Size()))

	// Discover intra-segment conflicts in parallel.
	preds := make([][]int32, len(txns))
	indexes := make([]*segIndex[K], len(segments))
	o.barrier(len(segments), func(s int) error {
		seg := segments[s]
		ix := newSegIndex[K](seg.end - seg.start)
		for i := seg.start; i < seg.end; i++ {
			tx := txns[i]
			preds[i] = ix.visit(base+int32(i), tx.ReadSet(), tx.WriteSet(), nil)
		}
		indexes[s] = ix
		return nil
	})

	// Resolve segment boundary accesses against the global index and merge
	// the per-segment key state into it, in segment order.
	for _, ix := range indexes {
		o.stitch(ix, base, preds)
	}

	o.relax(base, preds, txns)
}

// stitch links the segment's boundary accesses to their predecessors before
// the segment and merges the segment's final key state into the global
// index.
func (o *Orderer[T, K]) stitch(ix *segIndex[K], base int32, preds [][]int32) {
	for _, key := range ix.keys {
		e := ix.entries[key]
		lastWriter, readers := o.index.Probe(key)

		// Reads not preceded by a write in the segment.
		if lastWriter != deptrack.NoTx {
			for _, r := range e.prefixReads {
				preds[r-base] = append(preds[r-base], lastWriter)
			}
		}

		// The segment's first write of the key.
		if e.firstWrite != deptrack.NoTx {
			fw := e.firstWrite - base
			switch {
			case len(readers) > 0:
				preds[fw] = append(preds[fw], readers...)
			case lastWriter != deptrack.NoTx && len(e.prefixReads) == 0:
				preds[fw] = append(preds[fw], lastWriter)
			}
		}

		switch {
		case e.lastWriter != deptrack.NoTx:
			o.index.MergeWrite(key, e.lastWriter, e.readers)
		case len(e.prefixReads) > 0:
			o.index.MergeReaders(key, e.prefixReads)
		}
	}
}

// relax assigns dependency levels to the chunk via iterative frontier
// expansion and appends the chunk to the tracker.
//
// Every predecessor either precedes the chunk (its level is known) or
// precedes its successor within the chunk, so the frontier always makes
// progress.
func (o *Orderer[T, K]) relax(base int32, preds [][]int32, txns []T) {
	n := len(txns)
	levels := make([]int32, n)
	maxPred := make([]atomic.Int32, n)
	unknown := make([]atomic.Int32, n)
	isuccs := make([][]int32, n)

	var frontier []int32
	for i := 0; i < n; i++ {
		ext := int32(-1)
		for _, p := range preds[i] {
			if p >= base {
				isuccs[p-base] = append(isuccs[p-base], int32(i))
				unknown[i].Add(1)
				continue
			}
			if l := o.tracker.Level(p); l > ext {
				ext = l
			}
		}
		maxPred[i].Store(ext)
		if unknown[i].Load() == 0 {
			frontier = append(frontier, int32(i))
		}
	}

	relaxOne := func(i int32, next []int32) []int32 {
		lvl := maxPred[i].Load() + 1
		levels[i] = lvl
		for _, s := range isuccs[i] {
			casMax(&maxPred[s], lvl)
			if unknown[s].Add(-1) == 0 {
				next = append(next, s)
			}
		}
		return next
	}

	for len(frontier) > 0 {
		o.rounds++

		if workers := int(o.pool.Size()); len(frontier) >= minParallelFrontier && workers > 1 {
			cur := frontier
			parts := splitSegments(len(cur), workers)
			locals := make([][]int32, len(parts))
			o.barrier(len(parts), func(j int) error {
				var next []int32
				for _, i := range cur[parts[j].start:parts[j].end] {
					next = relaxOne(i, next)
				}
				locals[j] = next
				return nil
			})

			frontier = frontier[:0]
			for _, local := range locals {
				frontier = append(frontier, local...)
			}
			continue
		}

		var next []int32
		for _, i := range frontier {
			next = relaxOne(i, next)
		}
		frontier = next
	}

	for i, tx := range txns {
		o.tracker.AppendLeveled(tx, preds[i], levels[i])
	}
}

// barrier runs n jobs on the pool and waits for all of them.
func (o *Orderer[T, K]) barrier(n int, job func(int) error) {
	results := make([]<-chan error, 0, n)
	for j := 0; j < n; j++ {
		j := j
		results = append(results, o.pool.Submit(func() error {
			return job(j)
		}))
	}
	for _, ch := range results {
		if err := <-ch; err != nil {
			panic(fmt.Sprintf("orderer/parallel: pool job failed: %v", err))
		}
	}
}

func casMax(v *atomic.Int32, x int32) {
	for {
		cur := v.Load()
		if x <= cur || v.CompareAndSwap(cur, x) {
			return
		}
	}
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
		Edges:  o.tracker.Edges(),
		Rounds: o.rounds,
	}
}

var _ api.BatchProducer[api.Transaction[int]] = (*Orderer[api.Transaction[int], int])(nil)
