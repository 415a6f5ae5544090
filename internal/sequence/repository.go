package sequence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bosunhq/stockroom/internal/platform/db"
)

// PostgresStore keeps counters in sequence_counters. It always uses its own
// pool, never the caller's transaction, so a reserved value stays consumed when
// the surrounding unit of work rolls back. The pool must not be the one
// transactions run on: callers reserve codes while holding a connection and a
// row lock, and a shared pool can be drained by those callers alone.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const incrementCounterSQL = `INSERT INTO sequence_counters (prefix, day, value, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (prefix, day) DO UPDATE
SET value = sequence_counters.value + 1, updated_at = NOW()
RETURNING value`

// Increment implements Store with a single upsert; the conflicting row is
// locked for the duration of the statement.
func (s *PostgresStore) Increment(ctx context.Context, prefix string, day time.Time) (int64, error) {
	var value int64
	if err := s.pool.QueryRow(ctx, incrementCounterSQL, prefix, day).Scan(&value); err != nil {
		return 0, db.MapError("sequence: increment counter", err)
	}
	return value, nil
}
