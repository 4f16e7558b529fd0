// Package drbg implements the HMAC_DRBG construction as specified by
// NIST Special Publication 800-90A Revision 1.
//
// The implementation does not support reseeding or prediction resistance
// and is intended for deterministic entropy expansion from a strong seed,
// not as a replacement for crypto/rand.
package drbg

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"fmt"
	"io"

	// Register the supported hash algorithms.
	_ "crypto/sha256"
	_ "crypto/sha512"
)

const (
	// Security strength in bytes (256 bits).
	minEntropyLen = 32

	// Maximum number of bytes per generate request (2^19 bits).
	maxBytesPerRequest = 1 << 16
)

// Drbg is a HMAC_DRBG instance.
//
// It implements io.Reader, with Read behaving as repeated invocations of
// the generate function with no additional input.
type Drbg struct {
	hashFn crypto.Hash

	k []byte
	v []byte
}

// New creates a new HMAC_DRBG instance, instantiated with the provided
// entropy input, nonce and personalization string.
func New(hashFn crypto.Hash, entropyInput, nonce, personalizationString []byte) (*Drbg, error) {
	if !hashFn.Available() {
		return nil, fmt.Errorf("drbg: hash function not available: %v", hashFn)
	}
	if len(entropyInput) < minEntropyLen {
		return nil, fmt.Errorf("drbg: insufficient entropy input: %v bytes", len(entropyInput))
	}

	outLen := hashFn.Size()
	d := &Drbg{
		hashFn: hashFn,
		k:      make([]byte, outLen),
		v:      bytes.Repeat([]byte{0x01}, outLen),
	}

	var seedMaterial []byte
	seedMaterial = append(seedMaterial, entropyInput...)
	seedMaterial = append(seedMaterial, nonce...)
	seedMaterial = append(seedMaterial, personalizationString...)
	d.update(seedMaterial)

	return d, nil
}

// Read reads len(p) bytes of output from the DRBG.  It never returns an
// error.
func (d *Drbg) Read(p []byte) (int, error) {
	var read int
	for read < len(p) {
		n := min(len(p)-read, maxBytesPerRequest)
		d.generate(p[read : read+n])
		read += n
	}
	return read, nil
}

func (d *Drbg) generate(out []byte) {
	// V = HMAC(K, V), repeated until enough output is produced.
	mac := hmac.New(d.hashFn.New, d.k)
	var generated int
	for generated < len(out) {
		mac.Reset()
		_, _ = mac.Write(d.v)
		d.v = mac.Sum(nil)
		generated += copy(out[generated:], d.v)
	}

	d.update(nil)
}

// update implements the HMAC_DRBG update function, mutating the internal
// key and value with the optional provided data.
func (d *Drbg) update(providedData []byte) {
	// K = HMAC(K, V || 0x00 || provided_data)
	mac := hmac.New(d.hashFn.New, d.k)
	_, _ = mac.Write(d.v)
	_, _ = mac.Write([]byte{0x00})
	_, _ = mac.Write(providedData)
	d.k = mac.Sum(nil)

	// V = HMAC(K, V)
	mac = hmac.New(d.hashFn.New, d.k)
	_, _ = mac.Write(d.v)
	d.v = mac.Sum(nil)

	if len(providedData) == 0 {
		return
	}

	// K = HMAC(K, V || 0x01 || provided_data)
	mac = hmac.New(d.hashFn.New, d.k)
	_, _ = mac.Write(d.v)
	_, _ = mac.Write([]byte{0x01})
	_, _ = mac.Write(providedData)
	d.k = mac.Sum(nil)

	// V = HMAC(K, V)
	mac = hmac.New(d.hashFn.New, d.k)
	_, _ = mac.Write(d.v)
	d.v = mac.Sum(nil)
}

var _ io.Reader = (*Drbg)(nil)
