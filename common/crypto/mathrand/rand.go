// Package mathrand implements an adapter that exposes an arbitrary
// entropy source as a math/rand compatible source.
package mathrand

import (
	"encoding/binary"
	"io"
	"math/rand"
)

type rngAdapter struct {
	src io.Reader
}

func (a *rngAdapter) Int63() int64 {
	return int64(a.Uint64() & ((1 << 63) - 1))
}

func (a *rngAdapter) Uint64() uint64 {
	var tmp [8]byte
	if _, err := io.ReadFull(a.src, tmp[:]); err != nil {
		panic("mathrand: failed to read from entropy source: " + err.Error())
	}
	return binary.BigEndian.Uint64(tmp[:])
}

func (a *rngAdapter) Seed(int64) {
	panic("mathrand: Seed() is not supported")
}

// New creates a new math/rand source backed by the provided entropy
// source, typically a DRBG instance.
func New(src io.Reader) rand.Source64 {
	return &rngAdapter{src: src}
}
