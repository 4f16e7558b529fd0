package compress

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer/api"
)

type segment struct {
	start int
	end   int
}

// splitSegments partitions n transactions into at most workers contiguous
// segments.  The partition is a pure function of its inputs so that the
// parallel compression stays deterministic for a fixed worker count.
func splitSegments(n, workers int) []segment {
	if workers < 1 {
		workers = 1
	}
	count := min(workers, n)
	if count == 0 {
		return nil
	}

	size := (n + count - 1) / count
	segments := make([]segment, 0, count)
	for start := 0; start < n; start += size {
		segments = append(segments, segment{start: start, end: min(start+size, n)})
	}
	return segments
}

// TransactionsParallel is Transactions parallelized over the given worker
// pool.
//
// Identifiers are assigned in segment merge order instead of global
// first-seen order, so they may differ from the sequential assignment.
// The conflict structure is always the same, and the assignment is
// deterministic for a fixed block and worker count.
func TransactionsParallel[T api.Transaction[K], K comparable](pool *workerpool.Pool, txns []T) ([]*Compressed[T], *Dictionary[K], error) {
	if pool == nil {
		return nil, nil, fmt.Errorf("compress: no worker pool provided")
	}

	segments := splitSegments(len(txns), int(pool.Size()))
	if len(segments) <= 1 {
		return Transactions(txns)
	}

	// Compress each segment against a segment-local dictionary.
	out := make([]*Compressed[T], len(txns))
	segKeys := make([][]K, len(segments))

	var merr error
	results := make([]<-chan error, 0, len(segments))
	for s, seg := range segments {
		s, seg := s, seg
		results = append(results, pool.Submit(func() error {
			local := newDictionary[K](seg.end - seg.start)
			for i := seg.start; i < seg.end; i++ {
				tx := txns[i]
				reads, writes := tx.ReadSet(), tx.WriteSet()
				if uint64(local.Len())+uint64(len(reads)+len(writes)) > math.MaxUint32 {
					return fmt.Errorf("compress: block key space exhausted")
				}
				out[i] = &Compressed[T]{
					tx:     tx,
					reads:  compressSet(local, reads),
					writes: compressSet(local, writes),
				}
			}
			segKeys[s] = local.keys
			return nil
		}))
	}
	for _, ch := range results {
		merr = multierr.Append(merr, <-ch)
	}
	if merr != nil {
		return nil, nil, merr
	}

	// Merge the segment dictionaries in segment order into the global one,
	// building per-segment translation tables.
	dict := newDictionary[K](len(txns))
	trans := make([][]Key, len(segments))
	for s, keys := range segKeys {
		if uint64(dict.Len())+uint64(len(keys)) > math.MaxUint32 {
			return nil, nil, fmt.Errorf("compress: block key space exhausted")
		}
		table := make([]Key, len(keys))
		for li, key := range keys {
			table[li] = dict.assign(key)
		}
		trans[s] = table
	}

	// Rewrite the segment-local identifiers into global ones.
	results = results[:0]
	for s, seg := range segments {
		s, seg := s, seg
		results = append(results, pool.Submit(func() error {
			table := trans[s]
			for i := seg.start; i < seg.end; i++ {
				if err := translate(out[i].reads, table); err != nil {
					return err
				}
				if err := translate(out[i].writes, table); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	for _, ch := range results {
		merr = multierr.Append(merr, <-ch)
	}
	if merr != nil {
		return nil, nil, merr
	}

	return out, dict, nil
}

func translate(ids []Key, table []Key) error {
	for j, id := range ids {
		if int(id) >= len(table) {
			return api.InvariantViolation(fmt.Sprintf("compress: identifier %d outside segment dictionary", id))
		}
		ids[j] = table[id]
	}
	return nil
}
