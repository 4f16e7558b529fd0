// Package hash implements a cryptographic hash over arbitrary binary data.
//
// The hash function is SHA-512/256.
package hash

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// Size is the size of the cryptographic hash in bytes.
const Size = 32

// ErrTruncateSize is the error returned when trying to truncate a hash to an
// invalid size.
var ErrTruncateSize = errors.New("hash: invalid truncate size")

// Hash is a cryptographic hash over arbitrary binary data.
type Hash [Size]byte

// FromBytes sets the hash to that of the concatenation of the given byte
// strings.
func (h *Hash) FromBytes(data ...[]byte) {
	hasher := sha512.New512_256()
	for _, d := range data {
		_, _ = hasher.Write(d)
	}
	copy(h[:], hasher.Sum(nil))
}

// Equal compares vs another hash for equality.
func (h *Hash) Equal(cmp *Hash) bool {
	if cmp == nil {
		return false
	}
	return subtle.ConstantTimeCompare(h[:], cmp[:]) == 1
}

// String returns the string representation of a hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Truncate returns the first n bytes of a hash.
func (h Hash) Truncate(n int) ([]byte, error) {
	if n <= 0 || n > Size {
		return nil, ErrTruncateSize
	}
	return append([]byte{}, h[:n]...), nil
}

// NewFromBytes creates a new hash by hashing the provided byte string(s).
func NewFromBytes(data ...[]byte) (h Hash) {
	h.FromBytes(data...)
	return
}
