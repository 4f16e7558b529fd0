package batching

import (
	"time"

	"github.com/oasisprotocol/block-orderer/orderer/api"
)

// IdentityName is the name of the identity ordering strategy.
const IdentityName = "identity"

// identity is the trivial block orderer: it emits the whole block, in its
// original order, as a single batch.  The batch carries no conflict-freedom
// guarantee; the strategy exists as the do-nothing baseline.
type identity[T any] struct{}

// NewIdentity creates a block orderer that emits every block unchanged as a
// single batch.
func NewIdentity[T any]() api.BlockOrderer[T] {
	initMetrics()
	return identity[T]{}
}

// Name is the name of the ordering strategy.
func (identity[T]) Name() string {
	return IdentityName
}

// OrderTransactions emits txns unchanged as a single batch.  onBatch is
// invoked exactly once, even for an empty block.
func (identity[T]) OrderTransactions(txns []T, onBatch func([]T) error) error {
	start := time.Now()
	if err := onBatch(txns); err != nil {
		return err
	}

	batchSizes.WithLabelValues(IdentityName).Observe(float64(len(txns)))
	orderedTxns.WithLabelValues(IdentityName).Add(float64(len(txns)))
	orderedBatches.WithLabelValues(IdentityName).Inc()
	orderingSeconds.WithLabelValues(IdentityName).Observe(time.Since(start).Seconds())
	return nil
}
