package deptrack

// NoTx is the sentinel value for "no transaction".
const NoTx int32 = -1

type keyEntry struct {
	// lastWriter is the most recent writer of the key, NoTx if none.
	lastWriter int32

	// readers are the readers of the key since the last write, in visit
	// order.
	readers []int32
}

// KeyIndex tracks, for every state key, the most recent writer and the
// readers since that write.  Probing it for a transaction's footprint
// yields exactly the transaction's direct predecessors: the latest writer
// for each read key and, for each written key, all readers since the last
// write (or the writer itself when there are none).
type KeyIndex[K comparable] struct {
	entries map[K]*keyEntry
}

// NewKeyIndex creates an empty key index.
func NewKeyIndex[K comparable]() *KeyIndex[K] {
	return &KeyIndex[K]{
		entries: make(map[K]*keyEntry),
	}
}

func (ix *KeyIndex[K]) entry(key K) *keyEntry {
	e, ok := ix.entries[key]
	if !ok {
		e = &keyEntry{lastWriter: NoTx}
		ix.entries[key] = e
	}
	return e
}

// Visit records the given transaction's footprint in the index and appends
// the transaction's direct predecessors to preds, returning the extended
// slice.  The result may contain duplicates; edge multiplicity is handled
// consistently by the tracker.
func (ix *KeyIndex[K]) Visit(tx int32, reads, writes []K, preds []int32) []int32 {
	for _, key := range reads {
		e := ix.entry(key)
		if e.lastWriter != NoTx && e.lastWriter != tx {
			preds = append(preds, e.lastWriter)
		}
		// Guard against duplicate keys within a single footprint.
		if n := len(e.readers); n == 0 || e.readers[n-1] != tx {
			e.readers = append(e.readers, tx)
		}
	}

	for _, key := range writes {
		e := ix.entry(key)
		var hasReaders bool
		for _, r := range e.readers {
			if r != tx {
				preds = append(preds, r)
				hasReaders = true
			}
		}
		if !hasReaders && e.lastWriter != NoTx && e.lastWriter != tx {
			preds = append(preds, e.lastWriter)
		}
		e.lastWriter = tx
		e.readers = e.readers[:0]
	}

	return preds
}

// Probe returns the key's current last writer and the readers since that
// write, without recording anything.  The returned slice must not be
// retained across index mutations.
func (ix *KeyIndex[K]) Probe(key K) (int32, []int32) {
	if e, ok := ix.entries[key]; ok {
		return e.lastWriter, e.readers
	}
	return NoTx, nil
}

// MergeWrite replaces the key's state with a new last writer and the
// readers observed since that write.
func (ix *KeyIndex[K]) MergeWrite(key K, writer int32, readers []int32) {
	e := ix.entry(key)
	e.lastWriter = writer
	e.readers = append(e.readers[:0], readers...)
}

// MergeReaders records additional readers of the key's current last write.
func (ix *KeyIndex[K]) MergeReaders(key K, readers []int32) {
	e := ix.entry(key)
	e.readers = append(e.readers, readers...)
}

// Forget removes the given transaction's contributions to the index.
//
// Transactions must be forgotten in Add order, oldest first, which is what
// conflict window eviction does.  Edges already discovered are unaffected.
func (ix *KeyIndex[K]) Forget(tx int32, reads, writes []K) {
	for _, key := range writes {
		e, ok := ix.entries[key]
		if !ok {
			continue
		}
		if e.lastWriter == tx {
			e.lastWriter = NoTx
		}
		ix.maybeRelease(key, e)
	}

	for _, key := range reads {
		e, ok := ix.entries[key]
		if !ok {
			continue
		}
		// Eviction order makes the oldest reader the front one.
		if len(e.readers) > 0 && e.readers[0] == tx {
			e.readers = e.readers[1:]
		}
		ix.maybeRelease(key, e)
	}
}

func (ix *KeyIndex[K]) maybeRelease(key K, e *keyEntry) {
	if e.lastWriter == NoTx && len(e.readers) == 0 {
		delete(ix.entries, key)
	}
}

// Keys returns the number of keys currently tracked by the index.
func (ix *KeyIndex[K]) Keys() int {
	return len(ix.entries)
}
