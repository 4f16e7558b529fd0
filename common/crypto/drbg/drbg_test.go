package drbg

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test vector from the NIST CAVP HMAC_DRBG test suite (SHA-256, no reseed,
// no personalization string, no additional input).  The expected output is
// that of the second generate call.
const (
	katEntropyInput = "ca851911349384bffe89de1cbdc46e6831e44d34a4fb935ee285dd14b71a7488"
	katNonce        = "659ba96c601dc69fc902940805ec0ca8"
	katReturnedBits = "e528e9abf2dece54d47c7e75e5fe302149f817ea9fb4bee6f4199697d04d5b89d54fbb978a15b5c443c9ec21036d2460b6f73ebad0dc2aba6e624abf07745bc107694bb7547bb0995f70de25d6b29e2d3011bb19d27676c07162c8b5ccde0668961df86803482cb37ed6d5c0bb8d50cf1f50d476aa0458bdaba806f48be9dcb8"
)

func TestHmacDrbgKat(t *testing.T) {
	require := require.New(t)

	entropyInput, err := hex.DecodeString(katEntropyInput)
	require.NoError(err, "decode entropy input")
	nonce, err := hex.DecodeString(katNonce)
	require.NoError(err, "decode nonce")
	returnedBits, err := hex.DecodeString(katReturnedBits)
	require.NoError(err, "decode returned bits")

	drbg, err := New(crypto.SHA256, entropyInput, nonce, nil)
	require.NoError(err, "New")

	out := make([]byte, len(returnedBits))
	for i := 0; i < 2; i++ {
		n, err := drbg.Read(out)
		require.NoError(err, "Read")
		require.Equal(len(out), n, "Read length")
	}
	require.Equal(returnedBits, out, "output must match the known answer")
}

func TestHmacDrbgDeterminism(t *testing.T) {
	require := require.New(t)

	entropy := []byte("very very very secret entropy input, do not use")
	nonce := []byte("drbg:tests")

	a, err := New(crypto.SHA512, entropy, nonce, []byte("personalization"))
	require.NoError(err, "New (a)")
	b, err := New(crypto.SHA512, entropy, nonce, []byte("personalization"))
	require.NoError(err, "New (b)")
	c, err := New(crypto.SHA512, entropy, []byte("different nonce"), []byte("personalization"))
	require.NoError(err, "New (c)")

	bufA, bufB, bufC := make([]byte, 512), make([]byte, 512), make([]byte, 512)
	_, _ = a.Read(bufA)
	_, _ = b.Read(bufB)
	_, _ = c.Read(bufC)

	require.Equal(bufA, bufB, "identical parameters must yield an identical stream")
	require.NotEqual(bufA, bufC, "a different nonce must yield a different stream")
}

func TestHmacDrbgLargeRead(t *testing.T) {
	require := require.New(t)

	drbg, err := New(crypto.SHA256, []byte("00000000000000000000000000000000"), nil, nil)
	require.NoError(err, "New")

	// Larger than the per-request limit, forcing multiple generate calls.
	buf := make([]byte, maxBytesPerRequest+4096)
	n, err := drbg.Read(buf)
	require.NoError(err, "Read")
	require.Equal(len(buf), n, "Read length")
}

func TestHmacDrbgInsufficientEntropy(t *testing.T) {
	require := require.New(t)

	_, err := New(crypto.SHA256, []byte("not nearly enough"), nil, nil)
	require.Error(err, "insufficient entropy input must be rejected")
}
