package cbor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalEncoding(t *testing.T) {
	require := require.New(t)

	// Map keys come out sorted per the canonical encoding rules.
	require.Equal(
		[]byte{0xa2, 0x61, 0x61, 0x01, 0x61, 0x62, 0x02},
		Marshal(map[string]int{"a": 1, "b": 2}),
	)

	type record struct {
		Label string `json:"label,omitempty"`
		Count uint32 `json:"count"`
	}

	src := record{Label: "canonical", Count: 3}
	var decoded record
	require.NoError(Unmarshal(Marshal(src), &decoded), "Unmarshal")
	require.Equal(src, decoded, "records should round-trip unchanged")
}

func TestUnmarshalStrictness(t *testing.T) {
	require := require.New(t)

	// Array header advertising a huge element count.
	var b []byte
	require.Error(Unmarshal([]byte("\x9b\x00\x00000000"), &b), "oversized array header should fail")

	// Duplicate map keys.
	var m map[string]int
	require.Error(Unmarshal([]byte{0xa2, 0x61, 0x61, 0x01, 0x61, 0x61, 0x02}, &m), "duplicate map keys should fail")

	// Indefinite length items.
	var ints []int
	require.Error(Unmarshal([]byte{0x9f, 0x01, 0x02, 0xff}, &ints), "indefinite length items should fail")

	// Nil input leaves the destination alone.
	x := 42
	require.NoError(Unmarshal(nil, &x), "Unmarshal(nil)")
	require.Equal(42, x)

	require.Panics(func() {
		MustUnmarshal([]byte{0xff}, &x)
	}, "MustUnmarshal should panic on malformed input")
}

func TestFixSliceForSerde(t *testing.T) {
	require := require.New(t)

	require.NotNil(FixSliceForSerde(nil), "nil slices become empty ones")
	require.Len(FixSliceForSerde(nil), 0)

	b := []byte{1, 2, 3}
	require.Equal(b, FixSliceForSerde(b), "non-nil slices pass through")
}

func TestEncoderDecoderStream(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(enc.Encode(i), "Encode")
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		var x int
		require.NoError(dec.Decode(&x), "Decode")
		require.Equal(i, x, "stream values should decode in order")
	}
}
