// Package workload generates synthetic peer-to-peer transfer blocks for
// exercising block orderers.
//
// Generated blocks mimic the footprint shape of a payment-heavy chain: every
// transaction is a signed transfer touching exactly two accounts drawn
// uniformly from a large account set, so conflicts are rare but nonzero and
// their frequency is controlled by the account count alone.
package workload

import (
	"crypto"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/oasisprotocol/block-orderer/common/cbor"
	"github.com/oasisprotocol/block-orderer/common/crypto/address"
	"github.com/oasisprotocol/block-orderer/common/crypto/drbg"
	"github.com/oasisprotocol/block-orderer/common/crypto/hash"
	"github.com/oasisprotocol/block-orderer/common/crypto/mathrand"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer/api"
)

var (
	// AddressV0Context is the unique context for v0 bench account addresses.
	AddressV0Context = address.NewContext("block-orderer/address: bench account", 0)

	// AddressBech32HRP is the unique Bech32 HRP for bench account addresses.
	AddressBech32HRP = address.NewBech32HRP("bench")

	// transferSigningContext domain separates bench transfer signatures from
	// any other use of the account keys.
	transferSigningContext = []byte("block-orderer/bench: transfer")
)

// Address is the address of a bench account.
type Address address.Address

// NewAddress creates a new bench account address from an account public key.
func NewAddress(pk ed25519.PublicKey) Address {
	return (Address)(address.NewAddress(AddressV0Context, pk))
}

// MarshalText encodes an address into text form.
func (a Address) MarshalText() ([]byte, error) {
	return (address.Address)(a).MarshalBech32(AddressBech32HRP)
}

// UnmarshalText decodes a text marshaled address.
func (a *Address) UnmarshalText(text []byte) error {
	return (*address.Address)(a).UnmarshalBech32(AddressBech32HRP, text)
}

// MarshalBinary encodes an address into binary form.
func (a Address) MarshalBinary() ([]byte, error) {
	return (address.Address)(a).MarshalBinary()
}

// UnmarshalBinary decodes a binary marshaled address.
func (a *Address) UnmarshalBinary(data []byte) error {
	return (*address.Address)(a).UnmarshalBinary(data)
}

// Equal compares vs another address for equality.
func (a Address) Equal(cmp Address) bool {
	return (address.Address)(a).Equal((address.Address)(cmp))
}

// String returns the string representation of an address.
func (a Address) String() string {
	bech, err := a.MarshalText()
	if err != nil {
		return "[malformed]"
	}
	return string(bech)
}

// Transfer is the body of a peer-to-peer transfer between two bench
// accounts.
type Transfer struct {
	// Nonce is the transfer's block-unique nonce.
	Nonce uint64 `json:"nonce"`

	// From is the address of the sending account.
	From Address `json:"from"`

	// To is the address of the receiving account.
	To Address `json:"to"`

	// Amount is the transferred amount, in base units.
	Amount uint64 `json:"amount"`
}

// sigDigest returns the domain separated digest covered by the sender's
// signature.
func (t *Transfer) sigDigest() []byte {
	digest := hash.NewFromBytes(transferSigningContext, cbor.Marshal(t))
	return digest[:]
}

// SignedTransfer is a transfer together with the sender's public key and
// signature over the transfer body.
//
// Its footprint declares both account balances as read and written, which is
// what executing the transfer (balance checks, debit, credit) touches.
type SignedTransfer struct {
	Transfer

	// PublicKey is the sender's public key.
	PublicKey []byte `json:"public_key"`

	// Signature is the sender's signature over the transfer body.
	Signature []byte `json:"signature"`
}

// SignTransfer signs a transfer body with the sender's private key.
func SignTransfer(t Transfer, priv ed25519.PrivateKey) *SignedTransfer {
	pub := priv.Public().(ed25519.PublicKey)
	return &SignedTransfer{
		Transfer:  t,
		PublicKey: pub,
		Signature: ed25519.Sign(priv, t.sigDigest()),
	}
}

// Verify checks that the signature is a valid sender signature over the
// transfer body.
func (st *SignedTransfer) Verify() error {
	if len(st.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("workload: transfer %d: malformed sender public key", st.Nonce)
	}
	pk := ed25519.PublicKey(st.PublicKey)
	if !st.From.Equal(NewAddress(pk)) {
		return fmt.Errorf("workload: transfer %d: sender public key does not match the from address", st.Nonce)
	}
	if !ed25519.Verify(pk, st.sigDigest(), st.Signature) {
		return fmt.Errorf("workload: transfer %d: invalid signature", st.Nonce)
	}
	return nil
}

// ReadSet returns the set of state keys the transfer may read.
func (st *SignedTransfer) ReadSet() []Address {
	return []Address{st.From, st.To}
}

// WriteSet returns the set of state keys the transfer may write.
func (st *SignedTransfer) WriteSet() []Address {
	return []Address{st.From, st.To}
}

// Account is a bench account with a real signing key.
type Account struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	Address    Address
}

// accountChunk is the unit of parallel account generation.  Each chunk
// derives its keys from an independent DRBG instance, making the account
// set a function of the seed alone, not of the worker count.
const accountChunk = 4096

// Generator produces synthetic transfer blocks over a fixed account set.
//
// For a nonzero seed everything the generator emits is deterministic; a zero
// seed draws fresh entropy, for runs that should differ.
type Generator struct {
	accounts []Account

	rng   *rand.Rand
	nonce uint64
}

// NewGenerator creates a bench account set and the transfer sampler.
// Account keys are derived in parallel over the given worker pool.
func NewGenerator(numAccounts int, seed uint64, pool *workerpool.Pool) (*Generator, error) {
	if numAccounts < 2 {
		return nil, fmt.Errorf("workload: at least two accounts are needed for transfers, got %d", numAccounts)
	}
	if pool == nil {
		return nil, fmt.Errorf("workload: no worker pool provided")
	}

	entropy, err := seedEntropy(seed)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, numAccounts)
	results := make([]<-chan error, 0, (numAccounts+accountChunk-1)/accountChunk)
	for start := 0; start < numAccounts; start += accountChunk {
		chunk := accounts[start:min(start+accountChunk, numAccounts)]
		var nonce [8]byte
		binary.BigEndian.PutUint64(nonce[:], uint64(start))

		results = append(results, pool.Submit(func() error {
			src, err := drbg.New(crypto.SHA512, entropy, nonce[:], []byte("block-orderer/bench: account keys"))
			if err != nil {
				return err
			}
			for i := range chunk {
				pub, priv, err := ed25519.GenerateKey(src)
				if err != nil {
					return err
				}
				chunk[i] = Account{
					PrivateKey: priv,
					PublicKey:  pub,
					Address:    NewAddress(pub),
				}
			}
			return nil
		}))
	}
	for _, ch := range results {
		if err := <-ch; err != nil {
			return nil, fmt.Errorf("workload: account generation failed: %w", err)
		}
	}

	src, err := drbg.New(crypto.SHA512, entropy, nil, []byte("block-orderer/bench: transfer sampler"))
	if err != nil {
		return nil, err
	}

	return &Generator{
		accounts: accounts,
		rng:      rand.New(mathrand.New(src)),
	}, nil
}

// NumAccounts returns the size of the generator's account set.
func (g *Generator) NumAccounts() int {
	return len(g.accounts)
}

// Account returns the i-th bench account.
func (g *Generator) Account(i int) *Account {
	return &g.accounts[i]
}

// MakeBlock generates a block of uniformly sampled transfers between
// distinct accounts.  Sampling is sequential to stay deterministic; the
// signing work is fanned out over the pool.
func (g *Generator) MakeBlock(size int, pool *workerpool.Pool) (*Block, error) {
	if size < 0 {
		return nil, fmt.Errorf("workload: negative block size %d", size)
	}

	// Sample the transfer bodies.
	senders := make([]int, size)
	transfers := make([]*SignedTransfer, size)
	for i := 0; i < size; i++ {
		from := g.rng.Intn(len(g.accounts))
		to := g.rng.Intn(len(g.accounts) - 1)
		if to >= from {
			to++
		}
		senders[i] = from
		transfers[i] = &SignedTransfer{
			Transfer: Transfer{
				Nonce:  g.nonce,
				From:   g.accounts[from].Address,
				To:     g.accounts[to].Address,
				Amount: uint64(g.rng.Intn(1000) + 1),
			},
		}
		g.nonce++
	}

	// Sign.  Ed25519 signatures are deterministic, so parallel signing does
	// not perturb the output.
	if err := forEachChunk(pool, size, func(i int) error {
		st := transfers[i]
		st.PublicKey = g.accounts[senders[i]].PublicKey
		st.Signature = ed25519.Sign(g.accounts[senders[i]].PrivateKey, st.Transfer.sigDigest())
		return nil
	}); err != nil {
		return nil, fmt.Errorf("workload: block signing failed: %w", err)
	}

	return &Block{
		Version:     FixtureVersion,
		NumAccounts: len(g.accounts),
		Transfers:   transfers,
	}, nil
}

// forEachChunk runs fn for every index in [0, n), fanned out over the pool
// in fixed size chunks.  The first error wins; all chunks run regardless.
func forEachChunk(pool *workerpool.Pool, n int, fn func(int) error) error {
	if pool == nil {
		return fmt.Errorf("workload: no worker pool provided")
	}

	results := make([]<-chan error, 0, (n+accountChunk-1)/accountChunk)
	for start := 0; start < n; start += accountChunk {
		start := start
		end := min(start+accountChunk, n)
		results = append(results, pool.Submit(func() error {
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	var firstErr error
	for _, ch := range results {
		if err := <-ch; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// seedEntropy expands the bench seed into DRBG entropy input.  A zero seed
// requests fresh entropy.
func seedEntropy(seed uint64) ([]byte, error) {
	if seed == 0 {
		entropy := make([]byte, 32)
		if _, err := cryptorand.Read(entropy); err != nil {
			return nil, fmt.Errorf("workload: entropy unavailable: %w", err)
		}
		return entropy, nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seed)
	digest := hash.NewFromBytes(buf[:])
	return digest[:], nil
}

var _ api.Transaction[Address] = (*SignedTransfer)(nil)
