// Package tests is a collection of block orderer implementation test cases.
package tests

import (
	"crypto"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/block-orderer/common/crypto/drbg"
	"github.com/oasisprotocol/block-orderer/common/crypto/mathrand"
	"github.com/oasisprotocol/block-orderer/orderer/api"
)

// Tx is the transaction type used by the implementation tests.
type Tx struct {
	Nonce  uint64
	Reads  []uint64
	Writes []uint64
}

// ReadSet returns the set of state keys the transaction may read.
func (tx *Tx) ReadSet() []uint64 { return tx.Reads }

// WriteSet returns the set of state keys the transaction may write.
func (tx *Tx) WriteSet() []uint64 { return tx.Writes }

// Conflicts returns true iff the two transactions cannot execute
// concurrently.
func (tx *Tx) Conflicts(other *Tx) bool {
	hit := func(xs, ys []uint64) bool {
		for _, x := range xs {
			for _, y := range ys {
				if x == y {
					return true
				}
			}
		}
		return false
	}
	return hit(tx.Writes, other.Writes) || hit(tx.Writes, other.Reads) || hit(tx.Reads, other.Writes)
}

// MakeOrderer constructs a fresh block orderer under test.
type MakeOrderer func() (api.BlockOrderer[*Tx], error)

func testRng(t require.TestingT) *rand.Rand {
	src, err := drbg.New(
		crypto.SHA512,
		[]byte("insecure orderer test seed, never use it for anything real"),
		nil,
		[]byte("block orderer implementation tests"),
	)
	require.NoError(t, err, "drbg.New")
	return rand.New(mathrand.New(src))
}

func randomBlock(rng *rand.Rand, numTxns, numKeys, maxSetSize int) []*Tx {
	randomSet := func() []uint64 {
		set := make([]uint64, rng.Intn(maxSetSize+1))
		for i := range set {
			set[i] = uint64(rng.Intn(numKeys))
		}
		return set
	}

	txns := make([]*Tx, 0, numTxns)
	for i := 0; i < numTxns; i++ {
		txns = append(txns, &Tx{Nonce: uint64(i), Reads: randomSet(), Writes: randomSet()})
	}
	return txns
}

func orderBlock(t *testing.T, orderer api.BlockOrderer[*Tx], txns []*Tx) [][]*Tx {
	var batches [][]*Tx
	err := orderer.OrderTransactions(txns, func(batch []*Tx) error {
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err, "OrderTransactions")
	return batches
}

// requireValidOrder checks the properties every ordering must have: the
// emitted batches concatenate to a permutation of the block.
func requireValidOrder(t *testing.T, txns []*Tx, batches [][]*Tx) {
	position := make(map[*Tx]int, len(txns))
	pos := 0
	for _, batch := range batches {
		for _, tx := range batch {
			_, dup := position[tx]
			require.False(t, dup, "transaction %d emitted twice", tx.Nonce)
			position[tx] = pos
			pos++
		}
	}
	require.Equal(t, len(txns), pos, "every transaction must be emitted exactly once")
	for _, tx := range txns {
		_, ok := position[tx]
		require.True(t, ok, "transaction %d never emitted", tx.Nonce)
	}
}

// requireExactOrder additionally checks the strict guarantees of the exact
// strategies: batches are conflict free and conflicting transactions keep
// their block order.
func requireExactOrder(t *testing.T, txns []*Tx, batches [][]*Tx) {
	for b, batch := range batches {
		for i := range batch {
			for j := i + 1; j < len(batch); j++ {
				require.False(t, batch[i].Conflicts(batch[j]),
					"batch %d contains conflicting transactions %d and %d", b, batch[i].Nonce, batch[j].Nonce)
			}
		}
	}

	batchOf := make(map[*Tx]int, len(txns))
	for b, batch := range batches {
		for _, tx := range batch {
			batchOf[tx] = b
		}
	}
	for i := range txns {
		for j := i + 1; j < len(txns); j++ {
			if !txns[i].Conflicts(txns[j]) {
				continue
			}
			require.Less(t, batchOf[txns[i]], batchOf[txns[j]],
				"conflicting transactions %d and %d must keep their block order", i, j)
		}
	}
}

// BlockOrdererImplementationTests exercises the basic functionality of a
// block orderer implementation.
//
// conflictFree enables the checks only the exact strategies can satisfy:
// emitted batches must be conflict free and conflicting transactions must
// never swap their block order.  Pass false for strategies that trade these
// guarantees away, such as the identity orderer or window-bounded conflict
// discovery with a window smaller than the test blocks.
func BlockOrdererImplementationTests(t *testing.T, makeOrderer MakeOrderer, conflictFree bool) {
	t.Run("EmptyBlock", func(t *testing.T) {
		testEmptyBlock(t, makeOrderer)
	})
	t.Run("SingleTransaction", func(t *testing.T) {
		testSingleTransaction(t, makeOrderer)
	})
	t.Run("HotKeys", func(t *testing.T) {
		testHotKeys(t, makeOrderer, conflictFree)
	})
	t.Run("RandomizedBlocks", func(t *testing.T) {
		testRandomizedBlocks(t, makeOrderer, conflictFree)
	})
	t.Run("EmitError", func(t *testing.T) {
		testEmitError(t, makeOrderer)
	})
	t.Run("IndependentBlocks", func(t *testing.T) {
		testIndependentBlocks(t, makeOrderer)
	})
}

func testEmptyBlock(t *testing.T, makeOrderer MakeOrderer) {
	orderer, err := makeOrderer()
	require.NoError(t, err, "makeOrderer")

	batches := orderBlock(t, orderer, nil)
	requireValidOrder(t, nil, batches)
}

func testSingleTransaction(t *testing.T, makeOrderer MakeOrderer) {
	orderer, err := makeOrderer()
	require.NoError(t, err, "makeOrderer")

	tx := &Tx{Nonce: 42, Reads: []uint64{1, 1}, Writes: []uint64{1, 2}}
	batches := orderBlock(t, orderer, []*Tx{tx})
	requireValidOrder(t, []*Tx{tx}, batches)
}

func testHotKeys(t *testing.T, makeOrderer MakeOrderer, conflictFree bool) {
	// Everything fights over a single key: writers chain up, readers
	// between two writers may share a batch.  Duplicate keys and
	// transactions both reading and writing the key must not confuse the
	// bookkeeping.
	txns := []*Tx{
		{Nonce: 0, Writes: []uint64{7, 7}},
		{Nonce: 1, Reads: []uint64{7}},
		{Nonce: 2, Reads: []uint64{7, 7}},
		{Nonce: 3, Reads: []uint64{7}, Writes: []uint64{7}},
		{Nonce: 4, Reads: []uint64{7}},
		{Nonce: 5, Writes: []uint64{7}},
	}

	orderer, err := makeOrderer()
	require.NoError(t, err, "makeOrderer")

	batches := orderBlock(t, orderer, txns)
	requireValidOrder(t, txns, batches)
	if conflictFree {
		requireExactOrder(t, txns, batches)
	}
}

func testRandomizedBlocks(t *testing.T, makeOrderer MakeOrderer, conflictFree bool) {
	rng := testRng(t)

	for _, numTxns := range []int{2, 16, 100, 500} {
		for _, numKeys := range []int{1, 3, 100} {
			t.Run(fmt.Sprintf("txns=%d/keys=%d", numTxns, numKeys), func(t *testing.T) {
				txns := randomBlock(rng, numTxns, numKeys, 3)

				orderer, err := makeOrderer()
				require.NoError(t, err, "makeOrderer")

				batches := orderBlock(t, orderer, txns)
				requireValidOrder(t, txns, batches)
				if conflictFree {
					requireExactOrder(t, txns, batches)
				}
			})
		}
	}
}

func testEmitError(t *testing.T, makeOrderer MakeOrderer) {
	orderer, err := makeOrderer()
	require.NoError(t, err, "makeOrderer")

	errBoom := fmt.Errorf("downstream rejected the batch")
	calls := 0
	err = orderer.OrderTransactions(randomBlock(testRng(t), 64, 5, 2), func([]*Tx) error {
		calls++
		return errBoom
	})
	require.Equal(t, errBoom, err, "emit errors must be propagated unchanged")
	require.Equal(t, 1, calls, "ordering must stop at the first emit error")
}

func testIndependentBlocks(t *testing.T, makeOrderer MakeOrderer) {
	// Each OrderTransactions call orders an independent block: state from
	// a previous block must not leak into the next.
	orderer, err := makeOrderer()
	require.NoError(t, err, "makeOrderer")

	first := []*Tx{
		{Nonce: 0, Writes: []uint64{1}},
		{Nonce: 1, Reads: []uint64{1}},
	}
	requireValidOrder(t, first, orderBlock(t, orderer, first))

	second := []*Tx{
		{Nonce: 2, Reads: []uint64{1}},
		{Nonce: 3, Writes: []uint64{2}},
	}
	requireValidOrder(t, second, orderBlock(t, orderer, second))
}

// BlockOrdererImplementationBenchmarks exercises the performance of a block
// orderer implementation.
func BlockOrdererImplementationBenchmarks(b *testing.B, makeOrderer func() (api.BlockOrderer[*Tx], error)) {
	for _, scenario := range []struct {
		name    string
		numTxns int
		numKeys int
	}{
		{"small/contended", 1_000, 100},
		{"small/sparse", 1_000, 100_000},
		{"large/contended", 10_000, 1_000},
		{"large/sparse", 10_000, 1_000_000},
	} {
		b.Run(scenario.name, func(b *testing.B) {
			rng := testRng(b)
			txns := randomBlock(rng, scenario.numTxns, scenario.numKeys, 2)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				orderer, err := makeOrderer()
				if err != nil {
					b.Fatalf("makeOrderer: %v", err)
				}
				err = orderer.OrderTransactions(txns, func([]*Tx) error { return nil })
				if err != nil {
					b.Fatalf("OrderTransactions: %v", err)
				}
			}
		})
	}
}
