package hash

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVectors(t *testing.T) {
	require := require.New(t)

	var empty Hash
	empty.FromBytes()
	require.Equal(
		"c672b8d1ef56ed28ab87c3622c5114069bdd3ad7b8f9737498d0c01ecef0967a",
		empty.String(),
		"SHA-512/256 of the empty string",
	)

	abc := NewFromBytes([]byte("abc"))
	require.Equal(
		"53048e2681941ef99b2e29b76b4c7dabe4c2d0c634fc6d46e0e2f13107e7af23",
		abc.String(),
		"SHA-512/256 of 'abc'",
	)

	split := NewFromBytes([]byte("a"), []byte("bc"))
	require.True(abc.Equal(&split), "hash should be over the concatenation")
	require.False(abc.Equal(&empty), "different hashes should not be equal")
	require.False(abc.Equal(nil), "nil should not be equal")
}

func TestHashTruncate(t *testing.T) {
	require := require.New(t)

	h := NewFromBytes([]byte("abc"))
	raw, err := hex.DecodeString(h.String())
	require.NoError(err, "DecodeString")

	for _, n := range []int{1, 20, Size} {
		truncated, terr := h.Truncate(n)
		require.NoError(terr, "Truncate")
		require.Equal(raw[:n], truncated, "truncated hash should be a prefix")
	}

	for _, n := range []int{-1, 0, Size + 1} {
		_, terr := h.Truncate(n)
		require.ErrorIs(terr, ErrTruncateSize, "out of range truncate size")
	}
}
