package compress

import (
	"crypto"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/block-orderer/common/crypto/drbg"
	"github.com/oasisprotocol/block-orderer/common/crypto/mathrand"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
)

type testTx struct {
	reads  []string
	writes []string
}

func (tx *testTx) ReadSet() []string  { return tx.reads }
func (tx *testTx) WriteSet() []string { return tx.writes }

func testRng(t *testing.T) *rand.Rand {
	src, err := drbg.New(
		crypto.SHA512,
		[]byte("insecure compress test seed, never use it for anything real"),
		nil,
		[]byte("compress tests"),
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
	for range numTxns {
		txns = append(txns, &testTx{reads: randomSet(), writes: randomSet()})
	}
	return txns
}

// originalFootprint maps a compressed footprint back to original keys.
func originalFootprint(t *testing.T, dict *Dictionary[string], ids []Key) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		key, ok := dict.Original(id)
		require.True(t, ok, "compressed identifier must resolve: %d", id)
		keys = append(keys, key)
	}
	return keys
}

func requireEquivalent(t *testing.T, txns []*testTx, seqOut, parOut []*Compressed[*testTx], seqDict, parDict *Dictionary[string]) {
	require := require.New(t)

	require.Len(parOut, len(txns))
	require.Equal(seqDict.Len(), parDict.Len(), "both assignments must cover the same distinct keys")

	for i := range txns {
		require.Same(txns[i], parOut[i].Unwrap(), "wrapped transaction must be preserved")
		require.ElementsMatch(
			originalFootprint(t, seqDict, seqOut[i].ReadSet()),
			originalFootprint(t, parDict, parOut[i].ReadSet()),
			"read sets must agree after decompression (tx %d)", i,
		)
		require.ElementsMatch(
			originalFootprint(t, seqDict, seqOut[i].WriteSet()),
			originalFootprint(t, parDict, parOut[i].WriteSet()),
			"write sets must agree after decompression (tx %d)", i,
		)
	}
}

func TestCompressTransactions(t *testing.T) {
	require := require.New(t)

	txns := []*testTx{
		{reads: []string{"b", "a", "b"}, writes: []string{"c"}},
		{reads: nil, writes: []string{"a", "c"}},
		{reads: []string{"d"}, writes: nil},
	}

	out, dict, err := Transactions(txns)
	require.NoError(err, "Transactions")
	require.Len(out, 3)
	require.Equal(4, dict.Len(), "four distinct keys")

	// Identifiers are assigned in first-seen order and duplicates dropped.
	require.Equal([]Key{0, 1}, out[0].ReadSet(), "b, a")
	require.Equal([]Key{2}, out[0].WriteSet(), "c")
	require.Equal([]Key{1, 2}, out[1].WriteSet(), "a, c")
	require.Equal([]Key{3}, out[2].ReadSet(), "d")
	require.Empty(out[1].ReadSet())
	require.Empty(out[2].WriteSet())

	for i, tx := range txns {
		require.Same(tx, out[i].Unwrap(), "Unwrap")
	}

	id, ok := dict.Lookup("a")
	require.True(ok, "Lookup must find a seen key")
	require.Equal(Key(1), id)
	key, ok := dict.Original(id)
	require.True(ok, "Original must find an assigned identifier")
	require.Equal("a", key)

	_, ok = dict.Lookup("nonexistent")
	require.False(ok, "Lookup must not find an unseen key")
	_, ok = dict.Original(Key(dict.Len()))
	require.False(ok, "Original must not find an unassigned identifier")
}

func TestCompressEmpty(t *testing.T) {
	require := require.New(t)

	out, dict, err := Transactions([]*testTx{})
	require.NoError(err, "Transactions")
	require.Empty(out)
	require.Equal(0, dict.Len())
}

func TestCompressParallel(t *testing.T) {
	pool := workerpool.New("test", nil)
	pool.Resize(4)
	defer pool.Stop()

	rng := testRng(t)
	txns := randomBlock(rng, 500, 64)

	seqOut, seqDict, err := Transactions(txns)
	require.NoError(t, err, "Transactions")
	parOut, parDict, err := TransactionsParallel(pool, txns)
	require.NoError(t, err, "TransactionsParallel")

	requireEquivalent(t, txns, seqOut, parOut, seqDict, parDict)
}

func TestCompressParallelDeterminism(t *testing.T) {
	require := require.New(t)

	pool := workerpool.New("test", nil)
	pool.Resize(4)
	defer pool.Stop()

	rng := testRng(t)
	txns := randomBlock(rng, 300, 32)

	out1, dict1, err := TransactionsParallel(pool, txns)
	require.NoError(err, "TransactionsParallel (1st)")
	out2, dict2, err := TransactionsParallel(pool, txns)
	require.NoError(err, "TransactionsParallel (2nd)")

	require.Equal(dict1.keys, dict2.keys, "identifier assignment must be deterministic")
	for i := range out1 {
		require.Equal(out1[i].ReadSet(), out2[i].ReadSet(), "read set assignment must be deterministic (tx %d)", i)
		require.Equal(out1[i].WriteSet(), out2[i].WriteSet(), "write set assignment must be deterministic (tx %d)", i)
	}
}

func TestSplitSegments(t *testing.T) {
	require := require.New(t)

	require.Empty(splitSegments(0, 4), "no transactions, no segments")
	require.Equal([]segment{{0, 3}}, splitSegments(3, 1))
	require.Equal([]segment{{0, 1}, {1, 2}}, splitSegments(2, 4), "segments never exceed transactions")

	segments := splitSegments(100, 8)
	require.Len(segments, 8)
	var total int
	for i, seg := range segments {
		require.Less(seg.start, seg.end, "segment %d must be non-empty", i)
		if i > 0 {
			require.Equal(segments[i-1].end, seg.start, "segments must be contiguous")
		}
		total += seg.end - seg.start
	}
	require.Equal(100, total, "segments must cover the block")
}

func FuzzCompressParallel(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 2, 3, 4})
	f.Add([]byte{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2})
	f.Add([]byte("some longer input that yields a handful of transactions"))

	pool := workerpool.New("fuzz", nil)
	pool.Resize(3)
	f.Cleanup(pool.Stop)

	key := func(b byte) string { return fmt.Sprintf("key/%d", b%64) }

	f.Fuzz(func(t *testing.T, data []byte) {
		var txns []*testTx
		for i := 0; i+3 < len(data); i += 4 {
			txns = append(txns, &testTx{
				reads:  []string{key(data[i]), key(data[i+1])},
				writes: []string{key(data[i+2]), key(data[i+3])},
			})
		}

		seqOut, seqDict, err := Transactions(txns)
		require.NoError(t, err, "Transactions")
		parOut, parDict, err := TransactionsParallel(pool, txns)
		require.NoError(t, err, "TransactionsParallel")

		requireEquivalent(t, txns, seqOut, parOut, seqDict, parDict)
	})
}
