package memstore

import (
	"context"
	"time"
)

// SequenceStore implements sequence.Store. Increments are never undone by a
// rolled back unit of work.
type SequenceStore struct {
	s *Store
}

// Increment bumps the counter for (prefix, day).
func (q SequenceStore) Increment(ctx context.Context, prefix string, day time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.s.seqMu.Lock()
	defer q.s.seqMu.Unlock()
	key := seqKey{prefix: prefix, day: day.UTC()}
	q.s.counters[key]++
	return q.s.counters[key], nil
}
