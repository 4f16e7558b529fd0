package parallel

import (
	"github.com/oasisprotocol/block-orderer/orderer/internal/deptrack"
)

type segment struct {
	start int
	end   int
}

// splitSegments partitions n items into at most parts contiguous segments of
// near-equal size. The split depends only on the arguments.
func splitSegments(n, parts int) []segment {
	if n == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	segments := make([]segment, 0, parts)
	size, rem := n/parts, n%parts
	start := 0
	for i := 0; i < parts; i++ {
		end := start + size
		if i < rem {
			end++
		}
		segments = append(segments, segment{start: start, end: end})
		start = end
	}
	return segments
}

// segEntry is the per-key access state of a single segment.
//
// Accesses before the segment's first write of the key cannot be resolved
// locally: reads land in prefixReads and the first write's predecessors are
// left for the stitch.  Past the first write the fields mirror the global
// key index.
type segEntry struct {
	prefixReads []int32
	firstWrite  int32

	lastWriter int32
	readers    []int32
}

// segIndex tracks per-key access state within one segment.  Keys are
// remembered in first-touch order so the stitch is deterministic.
type segIndex[K comparable] struct {
	entries map[K]*segEntry
	keys    []K
}

func newSegIndex[K comparable](hint int) *segIndex[K] {
	return &segIndex[K]{
		entries: make(map[K]*segEntry, hint),
	}
}

func (ix *segIndex[K]) entry(key K) *segEntry {
	e, ok := ix.entries[key]
	if !ok {
		e = &segEntry{
			firstWrite: deptrack.NoTx,
			lastWriter: deptrack.NoTx,
		}
		ix.entries[key] = e
		ix.keys = append(ix.keys, key)
	}
	return e
}

// visit records transaction tx's accesses and appends the predecessors
// resolvable within the segment to preds. Transaction ids are global.
func (ix *segIndex[K]) visit(tx int32, reads, writes []K, preds []int32) []int32 {
	for _, key := range reads {
		e := ix.entry(key)
		if e.lastWriter == deptrack.NoTx {
			// No write of the key in the segment yet, the read depends
			// on state preceding the segment.
			if n := len(e.prefixReads); n == 0 || e.prefixReads[n-1] != tx {
				e.prefixReads = append(e.prefixReads, tx)
			}
			continue
		}
		if e.lastWriter != tx {
			preds = append(preds, e.lastWriter)
		}
		if n := len(e.readers); n == 0 || e.readers[n-1] != tx {
			e.readers = append(e.readers, tx)
		}
	}

	for _, key := range writes {
		e := ix.entry(key)
		readers := e.readers
		if e.lastWriter == deptrack.NoTx {
			readers = e.prefixReads
		}
		var hasReaders bool
		for _, r := range readers {
			if r != tx {
				preds = append(preds, r)
				hasReaders = true
			}
		}
		if !hasReaders && e.lastWriter != deptrack.NoTx && e.lastWriter != tx {
			preds = append(preds, e.lastWriter)
		}

		if e.firstWrite == deptrack.NoTx {
			e.firstWrite = tx
		}
		e.lastWriter = tx
		e.readers = e.readers[:0]
	}

	return preds
}
