package address

import (
	"errors"
	"fmt"
	"sync"
)

// ContextIdentifierMaxSize is the maximum length of a context identifier.
const ContextIdentifierMaxSize = 64

// ErrMalformedContext is the error returned when an address context is
// malformed.
var ErrMalformedContext = errors.New("address: malformed context")

var registeredContexts sync.Map

// Context is a domain separation context for addresses.
type Context struct {
	// Identifier is the context identifier.
	Identifier string
	// Version is the context version.
	Version uint8
}

// String returns a string representation of the context.
func (c Context) String() string {
	return fmt.Sprintf("Context(Identifier: '%s', Version: %d)", c.Identifier, c.Version)
}

// domainSeparator returns the byte string mixed into addresses derived
// under this context.
func (c Context) domainSeparator() []byte {
	return append([]byte(c.Identifier), c.Version)
}

func (c Context) mustBeRegistered() {
	if _, ok := registeredContexts.Load(c); !ok {
		panic(fmt.Sprintf("address: context %s is not registered", c))
	}
}

// NewContext creates and registers a new context.  It panics if the context
// is malformed or already registered.
func NewContext(identifier string, version uint8) Context {
	// Zero length identifiers would defeat domain separation.
	if l := len(identifier); l == 0 || l > ContextIdentifierMaxSize {
		panic(ErrMalformedContext)
	}

	ctx := Context{Identifier: identifier, Version: version}
	if _, loaded := registeredContexts.LoadOrStore(ctx, true); loaded {
		panic(fmt.Sprintf("address: context %s is already registered", ctx))
	}
	return ctx
}
