package parallel

import (
	"crypto"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/block-orderer/common/crypto/drbg"
	"github.com/oasisprotocol/block-orderer/common/crypto/mathrand"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
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

func testRng(t *testing.T) *rand.Rand {
	src, err := drbg.New(
		crypto.SHA512,
		[]byte("insecure parallel test seed, never use it for anything real"),
		nil,
		[]byte("parallel tests"),
	)
	require.NoError(t, err, "drbg.New")
	return rand.New(mathrand.New(src))
}

func randomBlock(rng *rand.Rand, numTxns, numKeys int) []*testTx {
	randomSet := func() []string {
		set := make([]string, rng.Intn(4))
		for i := range set {
			set[i] = fmt.Sprintf("key/%d", rng.Intn(numKeys))
		}
		return set
	}

	txns := make([]*testTx, 0, numTxns)
	for i := range numTxns {
		txns = append(txns, &testTx{id: i, reads: randomSet(), writes: randomSet()})
	}
	return txns
}

func drainBatches(t *testing.T, p api.BatchProducer[*testTx]) [][]int {
	require := require.New(t)

	var batches [][]int
	for p.Pending() > 0 {
		n := p.Selected()
		require.Positive(n, "ready set must not be empty while transactions are pending")
		err := p.CommitPrefix(n, func(batch []*testTx) error {
			ids := make([]int, 0, len(batch))
			for _, tx := range batch {
				ids = append(ids, tx.id)
			}
			batches = append(batches, ids)
			return nil
		})
		require.NoError(err, "CommitPrefix")
	}
	return batches
}

func testPool(t *testing.T, workers uint) *workerpool.Pool {
	pool := workerpool.New("test", nil)
	pool.Resize(workers)
	t.Cleanup(pool.Stop)
	return pool
}

func TestParallelNew(t *testing.T) {
	require := require.New(t)

	_, err := New[*testTx, string](nil)
	require.Error(err, "a worker pool is required")

	producer, err := New[*testTx, string](testPool(t, 2))
	require.NoError(err, "New")
	require.Equal(Name, producer.Name())
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := testRng(t)

	const (
		numTxns = 700
		numKeys = 97
	)
	txns := randomBlock(rng, numTxns, numKeys)

	reference := sequential.New[*testTx, string]()
	reference.Add(txns)
	expected := drainBatches(t, reference)

	for _, workers := range []uint{1, 2, 3, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			require := require.New(t)

			producer, err := New[*testTx, string](testPool(t, workers))
			require.NoError(err, "New")
			producer.Add(txns)
			require.Equal(numTxns, producer.Pending())

			require.Equal(expected, drainBatches(t, producer))
			require.Positive(producer.Stats().Rounds, "level assignment takes at least one round")
		})
	}
}

func TestParallelChunkedAdds(t *testing.T) {
	require := require.New(t)
	rng := testRng(t)

	txns := randomBlock(rng, 400, 31)

	// Apply the same add/commit schedule to both producers: the chunked
	// feed must not change which transactions conflict.
	schedule := func(p api.BatchProducer[*testTx]) [][]int {
		var batches [][]int
		commitSome := func(n int) {
			if n > p.Selected() {
				n = p.Selected()
			}
			err := p.CommitPrefix(n, func(batch []*testTx) error {
				ids := make([]int, 0, len(batch))
				for _, tx := range batch {
					ids = append(ids, tx.id)
				}
				batches = append(batches, ids)
				return nil
			})
			require.NoError(err, "CommitPrefix")
		}

		p.Add(txns[:150])
		commitSome(40)
		p.Add(txns[150:160])
		p.Add(nil)
		commitSome(40)
		p.Add(txns[160:])
		return append(batches, drainBatches(t, p)...)
	}

	expected := schedule(sequential.New[*testTx, string]())

	producer, err := New[*testTx, string](testPool(t, 4))
	require.NoError(err, "New")
	require.Equal(expected, schedule(producer))
}

func TestParallelDeterminism(t *testing.T) {
	require := require.New(t)
	rng := testRng(t)

	txns := randomBlock(rng, 500, 53)

	order := func(workers uint) ([][]int, api.ProducerStats) {
		producer, err := New[*testTx, string](testPool(t, workers))
		require.NoError(err, "New")
		producer.Add(txns)
		return drainBatches(t, producer), producer.Stats()
	}

	first, firstStats := order(7)
	for range 3 {
		batches, stats := order(7)
		require.Equal(first, batches, "same input and worker count must reproduce the result")
		require.Equal(firstStats, stats, "stats must be deterministic")
	}

	other, _ := order(2)
	require.Equal(first, other, "the worker count must not change the result")
}

func TestParallelReadersAcrossSegments(t *testing.T) {
	require := require.New(t)

	// With two workers the block splits down the middle, so every conflict
	// here crosses the segment boundary.
	txns := []*testTx{
		{id: 0, writes: []string{"a"}},
		{id: 1, reads: []string{"a"}},
		{id: 2, reads: []string{"a"}},
		{id: 3, writes: []string{"a"}},
	}

	producer, err := New[*testTx, string](testPool(t, 2))
	require.NoError(err, "New")
	producer.Add(txns)

	batches := drainBatches(t, producer)
	require.Equal([][]int{{0}, {1, 2}, {3}}, batches)
}

func TestParallelSplitSegments(t *testing.T) {
	require := require.New(t)

	require.Empty(splitSegments(0, 4))
	require.Equal([]segment{{0, 3}}, splitSegments(3, 1))
	require.Equal([]segment{{0, 1}, {1, 2}}, splitSegments(2, 5), "never more segments than items")
	require.Equal([]segment{{0, 3}, {3, 5}, {5, 7}}, splitSegments(7, 3))

	// The concatenation always covers the range exactly.
	for n := range 33 {
		for parts := 1; parts < 9; parts++ {
			segments := splitSegments(n, parts)
			next := 0
			for _, s := range segments {
				require.Equal(next, s.start)
				require.Greater(s.end, s.start, "segments are never empty")
				next = s.end
			}
			require.Equal(n, next)
		}
	}
}
