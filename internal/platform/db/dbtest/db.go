// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bosunhq/stockroom/internal/platform/db"
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// SetupTestDB starts a shared PostgreSQL container once per test binary,
// applies the embedded migrations, truncates every table and returns a pool.
// The test is skipped under -short or when no container runtime is reachable.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return SetupTestDBWithConns(t, 20)
}

// SetupTestDBWithConns is SetupTestDB with a pool capped at maxConns.
func SetupTestDBWithConns(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("dbtest: skipping postgres integration test in short mode")
	}

	once.Do(func() {
		sharedDSN, initErr = startContainerAndMigrate()
	})
	if initErr != nil {
		t.Skipf("dbtest: postgres unavailable: %v", initErr)
	}

	pool := NewPool(t, maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, `TRUNCATE price_histories, dispatches, inventories, warehouses, activity_logs, sequence_counters RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("dbtest: truncate: %v", err)
	}
	return pool
}

// NewPool opens another pool on the shared test database. Call it after
// SetupTestDB so the container is running.
func NewPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	if sharedDSN == "" {
		t.Fatal("dbtest: NewPool called before SetupTestDB")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.New(ctx, sharedDSN, maxConns)
	if err != nil {
		t.Fatalf("dbtest: connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func startContainerAndMigrate() (dsn string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	defer func() {
		// testcontainers panics when no docker host can be resolved.
		if r := recover(); r != nil {
			err = fmt.Errorf("start container: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "stockroom",
			"POSTGRES_PASSWORD": "stockroom",
			"POSTGRES_DB":       "stockroom_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}

	dsn = fmt.Sprintf("postgres://stockroom:stockroom@%s:%s/stockroom_test?sslmode=disable", host, port.Port())
	if err := db.Migrate(ctx, dsn); err != nil {
		return "", err
	}
	return dsn, nil
}
