// Package compress implements block-scoped compression of transaction
// state keys into dense integer identifiers.
//
// Dependency tracking probes per-key state for every footprint entry, so
// the key representation dominates its cost.  Compressing arbitrary state
// keys into dense integers once per block makes every downstream probe an
// integer map access and every footprint a small integer slice.
package compress

import (
	"fmt"
	"math"

	"github.com/oasisprotocol/block-orderer/orderer/api"
)

// Key is a dense integer state key identifier, unique within a block.
type Key uint32

// Compressed wraps a transaction, replacing its declared footprint with
// the compressed integer form.
type Compressed[T any] struct {
	tx     T
	reads  []Key
	writes []Key
}

// ReadSet returns the compressed read set.
func (c *Compressed[T]) ReadSet() []Key {
	return c.reads
}

// WriteSet returns the compressed write set.
func (c *Compressed[T]) WriteSet() []Key {
	return c.writes
}

// Unwrap returns the wrapped transaction.
func (c *Compressed[T]) Unwrap() T {
	return c.tx
}

// Dictionary is the per-block mapping between original state keys and
// their dense identifiers.
type Dictionary[K comparable] struct {
	ids  map[K]Key
	keys []K
}

func newDictionary[K comparable](sizeHint int) *Dictionary[K] {
	return &Dictionary[K]{
		ids: make(map[K]Key, sizeHint),
	}
}

// Len returns the number of distinct keys in the dictionary.
func (d *Dictionary[K]) Len() int {
	return len(d.keys)
}

// Lookup returns the identifier assigned to the given key.
func (d *Dictionary[K]) Lookup(key K) (Key, bool) {
	id, ok := d.ids[key]
	return id, ok
}

// Original returns the original key for the given identifier.
func (d *Dictionary[K]) Original(id Key) (K, bool) {
	if int(id) >= len(d.keys) {
		var zero K
		return zero, false
	}
	return d.keys[id], true
}

func (d *Dictionary[K]) assign(key K) Key {
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := Key(len(d.keys))
	d.ids[key] = id
	d.keys = append(d.keys, key)
	return id
}

// Transactions compresses a block's transactions, assigning identifiers
// in first-seen order.  The compressed footprints are deduplicated, and
// two transactions conflict exactly when the uncompressed ones do.
func Transactions[T api.Transaction[K], K comparable](txns []T) ([]*Compressed[T], *Dictionary[K], error) {
	dict := newDictionary[K](len(txns))
	out := make([]*Compressed[T], len(txns))

	for i, tx := range txns {
		reads, writes := tx.ReadSet(), tx.WriteSet()
		if uint64(dict.Len())+uint64(len(reads)+len(writes)) > math.MaxUint32 {
			return nil, nil, fmt.Errorf("compress: block key space exhausted")
		}
		out[i] = &Compressed[T]{
			tx:     tx,
			reads:  compressSet(dict, reads),
			writes: compressSet(dict, writes),
		}
	}

	return out, dict, nil
}

// compressSet maps a footprint to identifier form, dropping duplicate
// keys.  Footprints are small enough that a linear scan beats a set.
func compressSet[K comparable](dict *Dictionary[K], keys []K) []Key {
	if len(keys) == 0 {
		return nil
	}

	out := make([]Key, 0, len(keys))
nextKey:
	for _, key := range keys {
		id := dict.assign(key)
		for _, seen := range out {
			if seen == id {
				continue nextKey
			}
		}
		out = append(out, id)
	}
	return out
}
