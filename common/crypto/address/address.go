// Package address implements context-separated cryptographic addresses.
//
// An address is a version byte followed by a truncated hash over a
// registered domain separation context and the raw address data.  Text
// forms use Bech32 with a registered human readable part.
package address

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"

	"github.com/oasisprotocol/block-orderer/common/crypto/hash"
	"github.com/oasisprotocol/block-orderer/common/encoding/bech32"
)

const (
	// VersionSize is the size of the address version, in bytes.
	VersionSize = 1
	// Size is the size of the whole address, version byte included.
	Size = VersionSize + 20
)

// ErrMalformed is the error returned when an address is malformed.
var ErrMalformed = errors.New("address: malformed address")

var (
	_ encoding.BinaryMarshaler   = Address{}
	_ encoding.BinaryUnmarshaler = (*Address)(nil)
)

// Address is a versioned context-separated truncated hash of raw address
// data.
type Address [Size]byte

// MarshalBinary encodes an address into binary form.
func (a Address) MarshalBinary() ([]byte, error) {
	return append([]byte{}, a[:]...), nil
}

// UnmarshalBinary decodes a binary marshaled address.
func (a *Address) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrMalformed
	}
	copy(a[:], data)
	return nil
}

// MarshalBech32 encodes an address into Bech32 text form.  The human
// readable part must have been registered with NewBech32HRP.
func (a Address) MarshalBech32(hrp Bech32HRP) ([]byte, error) {
	hrp.mustBeRegistered()

	encoded, err := bech32.Encode(hrp.String(), a[:])
	if err != nil {
		return nil, fmt.Errorf("address: encoding to bech32 failed: %w", err)
	}
	return []byte(encoded), nil
}

// UnmarshalBech32 decodes a Bech32 text marshaled address.  The human
// readable part must have been registered with NewBech32HRP.
func (a *Address) UnmarshalBech32(hrp Bech32HRP, text []byte) error {
	hrp.mustBeRegistered()

	decodedHRP, data, err := bech32.Decode(string(text))
	if err != nil {
		return fmt.Errorf("address: decoding from bech32 failed: %w", err)
	}
	if decodedHRP != hrp.String() {
		return fmt.Errorf("address: wrong bech32 human readable part: %s (expected: %s)", decodedHRP, hrp)
	}

	return a.UnmarshalBinary(data)
}

// Equal compares vs another address for equality.
func (a Address) Equal(cmp Address) bool {
	return bytes.Equal(a[:], cmp[:])
}

// NewAddress creates a new address from a registered context and raw
// address data.
func NewAddress(ctx Context, data []byte) (a Address) {
	ctx.mustBeRegistered()

	h := hash.NewFromBytes(ctx.domainSeparator(), data)
	truncated, err := h.Truncate(Size - VersionSize)
	if err != nil {
		panic(err)
	}

	a[0] = ctx.Version
	copy(a[VersionSize:], truncated)
	return
}
