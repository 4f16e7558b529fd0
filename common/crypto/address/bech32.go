package address

import (
	"errors"
	"fmt"
	"sync"
)

// Bech32HRPMaxSize is the maximum length of a human readable part (HRP) of
// Bech32 encoded addresses.
//
// Bech32 permits HRPs of up to 83 characters, but the whole encoded string
// is limited to 90 characters, so long HRPs just eat into the data budget.
const Bech32HRPMaxSize = 15

// ErrMalformedBech32HRP is the error returned when a Bech32 HRP is
// malformed.
var ErrMalformedBech32HRP = errors.New("address: malformed Bech32 human readable part")

var registeredBech32HRPs sync.Map

// Bech32HRP is the human readable part (HRP) of Bech32 encoded addresses.
type Bech32HRP string

// String returns the string representation of the HRP.
func (hrp Bech32HRP) String() string {
	return string(hrp)
}

func (hrp Bech32HRP) mustBeRegistered() {
	if _, ok := registeredBech32HRPs.Load(hrp); !ok {
		panic(fmt.Sprintf("address: Bech32 human readable part '%s' is not registered", hrp))
	}
}

// NewBech32HRP creates and registers a new human readable part (HRP) of
// Bech32 encoded addresses.  It panics if the HRP is malformed or already
// registered.
func NewBech32HRP(raw string) Bech32HRP {
	if l := len(raw); l == 0 || l > Bech32HRPMaxSize {
		panic(ErrMalformedBech32HRP)
	}

	hrp := Bech32HRP(raw)
	if _, loaded := registeredBech32HRPs.LoadOrStore(hrp, true); loaded {
		panic(fmt.Sprintf("address: Bech32 human readable part '%s' is already registered", hrp))
	}
	return hrp
}
