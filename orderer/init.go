// Package orderer implements block transaction ordering.
//
// A block orderer reorders the transactions of a block, based on their
// declared read and write footprints, into batches whose members can be
// executed concurrently.  Strategies range from the identity passthrough to
// parallel dependency analysis; all of them preserve the relative block
// order of conflicting transactions, so executing the batches in emission
// order is equivalent to executing the original block sequentially.
package orderer

import (
	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/batching"
	"github.com/oasisprotocol/block-orderer/orderer/parallel"
	"github.com/oasisprotocol/block-orderer/orderer/sequential"
)

// New constructs a block orderer based on the configuration.
//
// The worker pool is used by the parallel strategy only and may be nil for
// the others.
func New[T api.Transaction[K], K comparable](cfg Config, pool *workerpool.Pool) (api.BlockOrderer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	batchingCfg := batching.Config{
		MinBatchSize: cfg.MinBatchSize,
		Lookahead:    cfg.Lookahead,
	}

	switch cfg.Strategy {
	case batching.IdentityName:
		return batching.NewIdentity[T](), nil
	case sequential.Name:
		return batching.New(func() (api.BatchProducer[T], error) {
			return sequential.New[T, K](), nil
		}, batchingCfg)
	case sequential.WindowedName:
		return batching.New(func() (api.BatchProducer[T], error) {
			return sequential.NewWindowed[T, K](cfg.WindowSize)
		}, batchingCfg)
	case parallel.Name:
		return batching.New(func() (api.BatchProducer[T], error) {
			return parallel.New[T, K](pool)
		}, batchingCfg)
	default:
		return nil, api.ErrStrategyNotSupported
	}
}
