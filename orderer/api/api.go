// Package api implements the transaction orderer API.
package api

import (
	"errors"
	"fmt"
)

// ErrStrategyNotSupported is the error returned when the configured ordering
// strategy is not supported.
var ErrStrategyNotSupported = errors.New("orderer: strategy not supported")

// ErrInvariantViolation is the error returned (usually wrapped) when internal
// dependency bookkeeping has become inconsistent.  Any occurrence of this
// error indicates a bug.
var ErrInvariantViolation = errors.New("orderer: invariant violation")

// Transaction is the interface transactions must provide to be ordered.
//
// The declared footprint is a conservative hint: a transaction may touch
// fewer keys at execution time, but never more.  The returned slices may
// contain duplicate keys and are treated as sets.  Implementations must
// return footprints that are stable for the lifetime of the ordering.
type Transaction[K comparable] interface {
	// ReadSet returns the set of state keys the transaction may read.
	ReadSet() []K

	// WriteSet returns the set of state keys the transaction may write.
	WriteSet() []K
}

// BlockOrderer reorders the transactions of a single block into batches
// such that transactions within a batch can be executed concurrently.
type BlockOrderer[T any] interface {
	// Name is the name of the ordering strategy.
	Name() string

	// OrderTransactions reorders the block's transactions and emits them
	// as a sequence of batches via onBatch.
	//
	// The concatenation of all emitted batches is a permutation of txns.
	// Batches are emitted in dependency order: when two transactions
	// conflict, the one earlier in txns is never emitted in a later batch
	// than the other.  If onBatch returns an error, ordering stops
	// immediately, onBatch is not invoked again and the error is returned
	// unchanged.
	//
	// The call is synchronous and every invocation orders an independent
	// block.
	OrderTransactions(txns []T, onBatch func([]T) error) error
}

// BatchProducer is the incremental engine underneath a block orderer.
//
// Transactions are added in block order, possibly in multiple chunks.  The
// producer maintains the set of transactions whose (known) dependencies have
// all been committed; committing a prefix of that set emits a batch and may
// make further transactions ready.  Producers are not safe for concurrent
// use and order exactly one block each.
type BatchProducer[T any] interface {
	// Name is the name of the producer.
	Name() string

	// Add introduces the next chunk of the block's transactions, in block
	// order, into the producer.
	Add(txns []T)

	// Pending returns the number of added transactions that have not yet
	// been committed.
	Pending() int

	// Selected returns the number of transactions that are ready to be
	// committed, i.e. whose dependencies have all been committed.
	Selected() int

	// CommitPrefix commits the n first ready transactions as a single
	// batch and passes the batch to emit.
	//
	// emit is invoked exactly once.  Its error is propagated unchanged
	// and the producer state remains advanced regardless of it.  Calling
	// CommitPrefix with n greater than Selected is an API contract
	// violation and panics.
	CommitPrefix(n int, emit func([]T) error) error

	// Stats returns the producer's statistics.
	Stats() ProducerStats
}

// ProducerStats are batch producer statistics.
type ProducerStats struct {
	// Edges is the number of dependency edges discovered, with
	// multiplicity.
	Edges uint64

	// Evictions is the number of transactions whose index contributions
	// were forgotten due to conflict window eviction.
	Evictions uint64

	// Rounds is the number of frontier relaxation rounds used for level
	// assignment.
	Rounds uint64
}

// InvariantViolation constructs an ErrInvariantViolation wrapping error with
// the given description.
func InvariantViolation(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, msg)
}
