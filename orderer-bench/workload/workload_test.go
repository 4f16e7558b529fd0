package workload

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/block-orderer/common/cbor"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
)

func testPool(t *testing.T) *workerpool.Pool {
	pool := workerpool.New("workload-test", nil)
	pool.Resize(4)
	t.Cleanup(pool.Stop)
	return pool
}

func TestGeneratorDeterminism(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	const (
		numAccounts = 64
		blockSize   = 256
		seed        = 42
	)

	gen1, err := NewGenerator(numAccounts, seed, pool)
	require.NoError(err, "NewGenerator")
	gen2, err := NewGenerator(numAccounts, seed, pool)
	require.NoError(err, "NewGenerator")

	require.Equal(numAccounts, gen1.NumAccounts())
	for i := range numAccounts {
		require.Equal(gen1.Account(i).Address, gen2.Account(i).Address,
			"account %d must not depend on anything but the seed", i)
	}

	block1, err := gen1.MakeBlock(blockSize, pool)
	require.NoError(err, "MakeBlock")
	block2, err := gen2.MakeBlock(blockSize, pool)
	require.NoError(err, "MakeBlock")
	require.Equal(cbor.Marshal(block1), cbor.Marshal(block2),
		"the same seed must generate the same block")

	genOther, err := NewGenerator(numAccounts, seed+1, pool)
	require.NoError(err, "NewGenerator")
	blockOther, err := genOther.MakeBlock(blockSize, pool)
	require.NoError(err, "MakeBlock")
	require.NotEqual(cbor.Marshal(block1), cbor.Marshal(blockOther),
		"different seeds must generate different blocks")
}

func TestGeneratorTransfers(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	gen, err := NewGenerator(16, 1, pool)
	require.NoError(err, "NewGenerator")

	block, err := gen.MakeBlock(128, pool)
	require.NoError(err, "MakeBlock")
	require.Len(block.Transfers, 128)
	require.NoError(block.Validate(pool), "generated transfers must verify")

	seenNonces := make(map[uint64]bool)
	for _, st := range block.Transfers {
		require.False(st.From.Equal(st.To), "sender and receiver must differ")
		require.False(seenNonces[st.Nonce], "nonces must not repeat")
		seenNonces[st.Nonce] = true

		require.Equal([]Address{st.From, st.To}, st.ReadSet())
		require.Equal([]Address{st.From, st.To}, st.WriteSet())
	}

	// Nonces keep increasing across blocks from the same generator.
	next, err := gen.MakeBlock(8, pool)
	require.NoError(err, "MakeBlock")
	for _, st := range next.Transfers {
		require.False(seenNonces[st.Nonce], "nonces must not repeat across blocks")
	}
}

func TestTransferSignature(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	gen, err := NewGenerator(2, 7, pool)
	require.NoError(err, "NewGenerator")

	st := SignTransfer(Transfer{
		Nonce:  1,
		From:   gen.Account(0).Address,
		To:     gen.Account(1).Address,
		Amount: 10,
	}, gen.Account(0).PrivateKey)
	require.NoError(st.Verify(), "a signed transfer must verify")

	tampered := *st
	tampered.Amount++
	require.Error(tampered.Verify(), "tampering with the body must break the signature")

	spoofed := *st
	spoofed.PublicKey = gen.Account(1).PublicKey
	require.Error(spoofed.Verify(), "the public key must match the from address")
}

func TestFixtureRoundTrip(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	gen, err := NewGenerator(8, 3, pool)
	require.NoError(err, "NewGenerator")
	block, err := gen.MakeBlock(64, pool)
	require.NoError(err, "MakeBlock")

	path := filepath.Join(t.TempDir(), "block.cbor")
	require.NoError(SaveFixture(path, block), "SaveFixture")

	loaded, err := LoadFixture(path)
	require.NoError(err, "LoadFixture")
	require.NoError(loaded.Validate(pool), "Validate")
	require.Equal(cbor.Marshal(block), cbor.Marshal(loaded), "fixtures must round-trip unchanged")

	loaded.Version.Patch++
	require.NoError(loaded.Validate(pool), "patch version bumps stay compatible")

	loaded.Version.Major++
	require.Error(loaded.Validate(pool), "unsupported fixture versions must be rejected")
}

func TestAddressText(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	gen, err := NewGenerator(2, 9, pool)
	require.NoError(err, "NewGenerator")

	addr := gen.Account(0).Address
	text, err := addr.MarshalText()
	require.NoError(err, "MarshalText")
	require.Contains(string(text), AddressBech32HRP.String(), "addresses carry the bench HRP")

	var decoded Address
	require.NoError(decoded.UnmarshalText(text), "UnmarshalText")
	require.True(addr.Equal(decoded), "addresses must round-trip through text")
}

func TestGeneratorValidation(t *testing.T) {
	require := require.New(t)
	pool := testPool(t)

	_, err := NewGenerator(1, 1, pool)
	require.Error(err, "a single account cannot fund transfers")

	_, err = NewGenerator(2, 1, nil)
	require.Error(err, "a worker pool is required")
}
