// Package batching turns incremental batch producers into block orderers.
//
// The wrapper drives a producer through a block: it feeds transactions in
// block order, keeps no more than the configured lookahead pending, and
// commits the whole ready set whenever it has grown past the minimum batch
// size or nothing more can be fed.  Since any two simultaneously ready
// transactions are conflict free, every emitted batch is conflict free as
// well; the lookahead and minimum batch size only steer how aggressively
// independent transactions from further down the block are pulled into
// earlier batches.
package batching

import (
	"fmt"
	"time"

	"github.com/oasisprotocol/block-orderer/common/logging"
	"github.com/oasisprotocol/block-orderer/orderer/api"
)

// Config is the batching block orderer configuration.
type Config struct {
	// MinBatchSize is the number of ready transactions the wrapper tries
	// to accumulate before emitting a batch.  Batches may still be
	// smaller when the block runs out or dependencies prevent growth.
	MinBatchSize int

	// Lookahead bounds the number of uncommitted transactions held by the
	// producer at any time.  Zero means unbounded: the whole block is
	// added up front and every emitted batch is exactly one dependency
	// level.
	Lookahead int
}

// Validate validates the configuration.
func (cfg *Config) Validate() error {
	if cfg.MinBatchSize < 1 {
		return fmt.Errorf("orderer/batching: minimum batch size must be positive, got %d", cfg.MinBatchSize)
	}
	if cfg.Lookahead < 0 {
		return fmt.Errorf("orderer/batching: lookahead must not be negative, got %d", cfg.Lookahead)
	}
	return nil
}

// Orderer is a block orderer assembled from a batch producer factory.
type Orderer[T any] struct {
	newProducer func() (api.BatchProducer[T], error)
	cfg         Config

	name   string
	logger *logging.Logger
}

// New creates a block orderer that orders each block with a fresh producer
// obtained from newProducer.
func New[T any](newProducer func() (api.BatchProducer[T], error), cfg Config) (*Orderer[T], error) {
	if newProducer == nil {
		return nil, fmt.Errorf("orderer/batching: no producer factory provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Probe the factory so misconfigured producers are rejected here
	// rather than on the first block.
	probe, err := newProducer()
	if err != nil {
		return nil, fmt.Errorf("orderer/batching: producer construction failed: %w", err)
	}

	initMetrics()

	return &Orderer[T]{
		newProducer: newProducer,
		cfg:         cfg,
		name:        probe.Name(),
		logger:      logging.GetLogger("orderer/batching"),
	}, nil
}

// Name is the name of the ordering strategy.
func (o *Orderer[T]) Name() string {
	return o.name
}

// OrderTransactions reorders the block's transactions and emits them as a
// sequence of conflict-free batches via onBatch.
func (o *Orderer[T]) OrderTransactions(txns []T, onBatch func([]T) error) error {
	start := time.Now()
	producer, err := o.newProducer()
	if err != nil {
		return fmt.Errorf("orderer/batching: producer construction failed: %w", err)
	}

	var batches, txnsOut int
	emit := func(batch []T) error {
		if err := onBatch(batch); err != nil {
			return err
		}
		batches++
		txnsOut += len(batch)
		batchSizes.WithLabelValues(o.name).Observe(float64(len(batch)))
		return nil
	}

	cursor := 0
	if o.cfg.Lookahead == 0 {
		producer.Add(txns)
		cursor = len(txns)
	}

	for {
		for producer.Selected() < o.cfg.MinBatchSize && cursor < len(txns) && producer.Pending() < o.cfg.Lookahead {
			chunk := min(o.cfg.MinBatchSize, o.cfg.Lookahead-producer.Pending(), len(txns)-cursor)
			producer.Add(txns[cursor : cursor+chunk])
			cursor += chunk
		}

		n := producer.Selected()
		if n == 0 {
			if producer.Pending() > 0 {
				return api.InvariantViolation(fmt.Sprintf(
					"%s: empty ready set with %d transactions pending",
					o.name, producer.Pending(),
				))
			}
			break
		}

		if err := producer.CommitPrefix(n, emit); err != nil {
			return err
		}
	}

	stats := producer.Stats()
	o.updateMetrics(txnsOut, batches, &stats, time.Since(start))
	o.logger.Debug("ordered block",
		"strategy", o.name,
		"txns", txnsOut,
		"batches", batches,
		"edges", stats.Edges,
		"evictions", stats.Evictions,
		"rounds", stats.Rounds,
	)

	return nil
}

var _ api.BlockOrderer[any] = (*Orderer[any])(nil)
