package batching

import (
	"crypto"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/block-orderer/common/crypto/drbg"
	"github.com/oasisprotocol/block-orderer/common/crypto/mathrand"
	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/sequential"
)

type testTx struct {
	id     int
	reads  []string
	writes []string
}

func (tx *testTx) ReadSet() []string  { return tx.reads }
func (tx *testTx) WriteSet() []string { return tx.writes }

func sequentialFactory() (api.BatchProducer[*testTx], error) {
	return sequential.New[*testTx, string](), nil
}

// chainedBlock is a five transaction write chain on one key followed by five
// independent transactions.
func chainedBlock() []*testTx {
	txns := make([]*testTx, 0, 10)
	for i := range 5 {
		txns = append(txns, &testTx{id: i, writes: []string{"a"}})
	}
	for i := 5; i < 10; i++ {
		txns = append(txns, &testTx{id: i, writes: []string{fmt.Sprintf("k/%d", i)}})
	}
	return txns
}

func orderIDs(t *testing.T, o api.BlockOrderer[*testTx], txns []*testTx) [][]int {
	var batches [][]int
	err := o.OrderTransactions(txns, func(batch []*testTx) error {
		ids := make([]int, 0, len(batch))
		for _, tx := range batch {
			ids = append(ids, tx.id)
		}
		batches = append(batches, ids)
		return nil
	})
	require.NoError(t, err, "OrderTransactions")
	return batches
}

func TestBatchingDependencyLevels(t *testing.T) {
	require := require.New(t)

	// Without a lookahead bound the whole block is added up front and each
	// emitted batch is exactly one dependency level, whatever the minimum
	// batch size says.
	orderer, err := New(sequentialFactory, Config{MinBatchSize: 3, Lookahead: 0})
	require.NoError(err, "New")
	require.Equal(sequential.Name, orderer.Name())

	batches := orderIDs(t, orderer, chainedBlock())
	require.Equal([][]int{
		{0, 5, 6, 7, 8, 9},
		{1},
		{2},
		{3},
		{4},
	}, batches)
}

func TestBatchingLookaheadFeeding(t *testing.T) {
	require := require.New(t)

	// With a lookahead the block is fed incrementally and ready
	// transactions accumulate until the minimum batch size is reached, so
	// the write chain no longer forces one tiny batch per level at the
	// front.
	orderer, err := New(sequentialFactory, Config{MinBatchSize: 4, Lookahead: 10})
	require.NoError(err, "New")

	batches := orderIDs(t, orderer, chainedBlock())
	require.Equal([][]int{
		{0, 5, 6, 7},
		{8, 9, 1},
		{2},
		{3},
		{4},
	}, batches)
}

// spyProducer records the largest pending set its inner producer has held.
type spyProducer struct {
	api.BatchProducer[*testTx]
	maxPending *int
}

func (p *spyProducer) Add(txns []*testTx) {
	p.BatchProducer.Add(txns)
	if pending := p.BatchProducer.Pending(); pending > *p.maxPending {
		*p.maxPending = pending
	}
}

func TestBatchingLookaheadBound(t *testing.T) {
	require := require.New(t)

	const lookahead = 3
	var maxPending int
	factory := func() (api.BatchProducer[*testTx], error) {
		return &spyProducer{BatchProducer: sequential.New[*testTx, string](), maxPending: &maxPending}, nil
	}

	orderer, err := New(factory, Config{MinBatchSize: 2, Lookahead: lookahead})
	require.NoError(err, "New")

	batches := orderIDs(t, orderer, chainedBlock())
	require.LessOrEqual(maxPending, lookahead, "the producer must never hold more than the lookahead")

	var total int
	for _, batch := range batches {
		total += len(batch)
	}
	require.Equal(10, total, "every transaction is emitted exactly once")
}

func conflicts(a, b *testTx) bool {
	hit := func(xs, ys []string) bool {
		for _, x := range xs {
			for _, y := range ys {
				if x == y {
					return true
				}
			}
		}
		return false
	}
	return hit(a.writes, b.writes) || hit(a.writes, b.reads) || hit(a.reads, b.writes)
}

func TestBatchingRandomizedBlock(t *testing.T) {
	require := require.New(t)

	src, err := drbg.New(
		crypto.SHA512,
		[]byte("insecure batching test seed, never use it for anything real"),
		nil,
		[]byte("batching tests"),
	)
	require.NoError(err, "drbg.New")
	rng := rand.New(mathrand.New(src))

	const numTxns = 300
	txns := make([]*testTx, 0, numTxns)
	for i := range numTxns {
		randomSet := func() []string {
			set := make([]string, rng.Intn(3))
			for j := range set {
				set[j] = fmt.Sprintf("key/%d", rng.Intn(40))
			}
			return set
		}
		txns = append(txns, &testTx{id: i, reads: randomSet(), writes: randomSet()})
	}

	orderer, err := New(sequentialFactory, Config{MinBatchSize: 16, Lookahead: 64})
	require.NoError(err, "New")
	batches := orderIDs(t, orderer, txns)

	// The concatenation is a permutation of the block.
	var flat []int
	batchOf := make(map[int]int)
	for b, batch := range batches {
		for _, id := range batch {
			flat = append(flat, id)
			batchOf[id] = b
		}
	}
	sort.Ints(flat)
	for i, id := range flat {
		require.Equal(i, id, "emitted transactions must form a permutation")
	}

	// Batches are conflict free and conflicting transactions keep their
	// block order across batches.
	for i := range numTxns {
		for j := i + 1; j < numTxns; j++ {
			if !conflicts(txns[i], txns[j]) {
				continue
			}
			require.Less(batchOf[i], batchOf[j],
				"conflicting transactions %d and %d must be emitted in block order in distinct batches", i, j)
		}
	}
}

// brokenProducer claims pending transactions but never readies any.
type brokenProducer struct{}

func (brokenProducer) Name() string                                  { return "broken" }
func (brokenProducer) Add([]*testTx)                                 {}
func (brokenProducer) Pending() int                                  { return 5 }
func (brokenProducer) Selected() int                                 { return 0 }
func (brokenProducer) Stats() api.ProducerStats                      { return api.ProducerStats{} }
func (brokenProducer) CommitPrefix(int, func([]*testTx) error) error { return nil }

func TestBatchingInvariantViolation(t *testing.T) {
	require := require.New(t)

	orderer, err := New(func() (api.BatchProducer[*testTx], error) { return brokenProducer{}, nil }, Config{MinBatchSize: 1})
	require.NoError(err, "New")

	err = orderer.OrderTransactions(chainedBlock(), func([]*testTx) error { return nil })
	require.ErrorIs(err, api.ErrInvariantViolation)
}

func TestBatchingEmitError(t *testing.T) {
	require := require.New(t)

	orderer, err := New(sequentialFactory, Config{MinBatchSize: 1})
	require.NoError(err, "New")

	errBoom := fmt.Errorf("downstream rejected the batch")
	calls := 0
	err = orderer.OrderTransactions(chainedBlock(), func([]*testTx) error {
		calls++
		if calls == 2 {
			return errBoom
		}
		return nil
	})
	require.Equal(errBoom, err, "emit errors are propagated unchanged")
	require.Equal(2, calls, "ordering stops at the first emit error")
}

func TestBatchingEmptyBlock(t *testing.T) {
	require := require.New(t)

	orderer, err := New(sequentialFactory, Config{MinBatchSize: 4, Lookahead: 8})
	require.NoError(err, "New")
	require.Empty(orderIDs(t, orderer, nil), "no batches for an empty block")
}

func TestBatchingConfigValidation(t *testing.T) {
	require := require.New(t)

	_, err := New[*testTx](nil, Config{MinBatchSize: 1})
	require.Error(err, "a producer factory is required")

	_, err = New(sequentialFactory, Config{MinBatchSize: 0})
	require.Error(err, "zero minimum batch size")

	_, err = New(sequentialFactory, Config{MinBatchSize: 1, Lookahead: -1})
	require.Error(err, "negative lookahead")

	_, err = New(func() (api.BatchProducer[*testTx], error) {
		return nil, fmt.Errorf("no such producer")
	}, Config{MinBatchSize: 1})
	require.Error(err, "factory errors surface at construction")
}

func TestIdentity(t *testing.T) {
	require := require.New(t)

	orderer := NewIdentity[*testTx]()
	require.Equal(IdentityName, orderer.Name())

	txns := chainedBlock()
	batches := orderIDs(t, orderer, txns)
	require.Len(batches, 1, "the whole block in a single batch")
	require.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, batches[0])

	calls := 0
	err := orderer.OrderTransactions(nil, func(batch []*testTx) error {
		calls++
		require.Empty(batch)
		return nil
	})
	require.NoError(err, "OrderTransactions")
	require.Equal(1, calls, "identity emits exactly one batch even for an empty block")

	errBoom := fmt.Errorf("downstream rejected the batch")
	err = orderer.OrderTransactions(txns, func([]*testTx) error { return errBoom })
	require.Equal(errBoom, err)
}
