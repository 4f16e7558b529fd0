// Package deptrack implements the dependency tracking machinery shared by
// the dependency-aware batch producers.
package deptrack

import (
	"fmt"

	"github.com/google/btree"
)

const readyBtreeDegree = 2

type node[T any] struct {
	tx T

	// level is the transaction's dependency level: one more than the
	// maximum level among its direct predecessors, zero without any.
	level int32

	// pending is the number of not yet committed direct predecessors,
	// with multiplicity.
	pending int32

	// succs are the direct successors to unblock on commit.
	succs []int32

	committed bool
}

type readyRef struct {
	level int32
	idx   int32
}

func readyRefLess(a, b readyRef) bool {
	if a.level != b.level {
		return a.level < b.level
	}
	return a.idx < b.idx
}

// Tracker maintains the dependency state of a single block's transactions.
//
// Transactions are appended in block order together with their direct
// predecessors.  The tracker keeps the set of ready transactions (those
// with no uncommitted predecessors) ordered by dependency level and block
// position, and advances it as prefixes get committed.  At any point the
// ready set is pairwise conflict-free, provided the predecessor lists were
// complete.
type Tracker[T any] struct {
	nodes     []node[T]
	ready     *btree.BTreeG[readyRef]
	committed int
	edges     uint64
}

// New creates an empty dependency tracker.
func New[T any]() *Tracker[T] {
	return &Tracker[T]{
		ready: btree.NewG(readyBtreeDegree, readyRefLess),
	}
}

// Size returns the total number of transactions added to the tracker.
func (t *Tracker[T]) Size() int {
	return len(t.nodes)
}

// Pending returns the number of transactions that have not been committed.
func (t *Tracker[T]) Pending() int {
	return len(t.nodes) - t.committed
}

// Selected returns the number of transactions ready to be committed.
func (t *Tracker[T]) Selected() int {
	return t.ready.Len()
}

// Edges returns the number of dependency edges discovered so far, with
// multiplicity.
func (t *Tracker[T]) Edges() uint64 {
	return t.edges
}

// Tx returns the transaction at the given index.
func (t *Tracker[T]) Tx(idx int32) T {
	return t.nodes[idx].tx
}

// Level returns the dependency level of the transaction at the given index.
func (t *Tracker[T]) Level(idx int32) int32 {
	return t.nodes[idx].level
}

// IsCommitted returns whether the transaction at the given index has been
// committed.
func (t *Tracker[T]) IsCommitted(idx int32) bool {
	return t.nodes[idx].committed
}

// Append adds the block's next transaction together with its direct
// predecessors, deriving its dependency level from theirs.  It returns the
// transaction's index.
func (t *Tracker[T]) Append(tx T, preds []int32) int32 {
	var level int32
	for _, p := range preds {
		if pl := t.nodes[p].level + 1; pl > level {
			level = pl
		}
	}
	return t.AppendLeveled(tx, preds, level)
}

// AppendLeveled adds the block's next transaction together with its direct
// predecessors and an externally computed dependency level.  It returns the
// transaction's index.
func (t *Tracker[T]) AppendLeveled(tx T, preds []int32, level int32) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node[T]{tx: tx, level: level})
	nd := &t.nodes[idx]

	t.edges += uint64(len(preds))
	for _, p := range preds {
		pn := &t.nodes[p]
		if pn.committed {
			// Still contributes its level, but no blocking edge.
			continue
		}
		pn.succs = append(pn.succs, idx)
		nd.pending++
	}

	if nd.pending == 0 {
		t.ready.ReplaceOrInsert(readyRef{level: level, idx: idx})
	}
	return idx
}

// CommitPrefix commits the n first ready transactions, in (level, block
// position) order, as a single batch passed to emit.  The emit callback is
// invoked exactly once; its error is returned unchanged and the commit is
// not rolled back.
//
// Panics if n is negative or exceeds Selected.
func (t *Tracker[T]) CommitPrefix(n int, emit func([]T) error) error {
	if n < 0 || n > t.ready.Len() {
		panic(fmt.Sprintf("deptrack: commit of %d transactions with %d ready", n, t.ready.Len()))
	}

	batch := make([]T, 0, n)
	committed := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		ref, _ := t.ready.DeleteMin()
		nd := &t.nodes[ref.idx]
		nd.committed = true
		batch = append(batch, nd.tx)
		committed = append(committed, ref.idx)
	}
	t.committed += n

	// Unblock successors only after the whole prefix has been taken, so
	// that newly readied transactions cannot leak into this batch.
	for _, idx := range committed {
		for _, s := range t.nodes[idx].succs {
			sn := &t.nodes[s]
			sn.pending--
			if sn.pending == 0 {
				t.ready.ReplaceOrInsert(readyRef{level: sn.level, idx: s})
			}
		}
		t.nodes[idx].succs = nil
	}

	return emit(batch)
}
