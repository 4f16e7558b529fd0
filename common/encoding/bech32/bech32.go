// Package bech32 implements Bech32 encoding of arbitrary byte strings, as
// specified in BIP 173.
package bech32

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// Encode encodes an 8-bits per byte byte-slice into a Bech32-encoded string
// under the given human readable part.
func Encode(hrp string, data []byte) (string, error) {
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: regrouping bits failed: %w", err)
	}
	return bech32.Encode(hrp, converted)
}

// Decode decodes a Bech32-encoded string into its human readable part and
// an 8-bits per byte byte-slice.
func Decode(text string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(text)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: decoding failed: %w", err)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: regrouping bits failed: %w", err)
	}
	return hrp, converted, nil
}
