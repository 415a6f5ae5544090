// Package memstore keeps the whole ledger in process memory. It backs the
// STORAGE_DRIVER=memory mode and the service tests. A unit of work holds one
// global lock for its whole duration; nested units snapshot state and restore
// it when they fail, the same way a savepoint would.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

type txKey struct{}

type seqKey struct {
	prefix string
	day    time.Time
}

type state struct {
	warehouses map[uuid.UUID]warehouses.Warehouse
	items      map[uuid.UUID]inventory.Item
	dispatches map[uuid.UUID]dispatch.Dispatch
	prices     []inventory.PriceChange
	entries    []audit.Entry
}

func newState() *state {
	return &state{
		warehouses: make(map[uuid.UUID]warehouses.Warehouse),
		items:      make(map[uuid.UUID]inventory.Item),
		dispatches: make(map[uuid.UUID]dispatch.Dispatch),
	}
}

func (s *state) clone() *state {
	c := &state{
		warehouses: make(map[uuid.UUID]warehouses.Warehouse, len(s.warehouses)),
		items:      make(map[uuid.UUID]inventory.Item, len(s.items)),
		dispatches: make(map[uuid.UUID]dispatch.Dispatch, len(s.dispatches)),
		prices:     slices.Clone(s.prices),
		entries:    slices.Clone(s.entries),
	}
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.dispatches {
		c.dispatches[k] = v
	}
	return c
}

// Store is the in-memory database.
type Store struct {
	mu    sync.Mutex
	state *state

	// Identity counters and sequences survive rollbacks.
	seqMu       sync.Mutex
	counters    map[seqKey]int64
	nextEntryID int64
	nextPriceID int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		state:    newState(),
		counters: make(map[seqKey]int64),
	}
}

// RunInTx implements shared.Transactor.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return s.run(ctx, fn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(context.WithValue(ctx, txKey{}, true), fn)
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore: begin: %w", err)
	}
	return fn(ctx)
}

// do runs fn against the current state, taking the lock unless ctx is
// already inside a unit of work. Outside a unit of work each call commits on
// its own.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.state)
}

// Casers are stateful, so each comparison gets its own.
func foldKey(v string) string {
	return cases.Fold().String(v)
}

func equalFold(a, b string) bool {
	return foldKey(a) == foldKey(b)
}

func containsFold(haystack, needle string) bool {
	return needle == "" || strings.Contains(foldKey(haystack), foldKey(needle))
}

// Inventory returns the inventory.Repository view of the store.
func (s *Store) Inventory() inventory.Repository { return inventoryRepo{s} }

// Dispatches returns the dispatch.Repository view of the store.
func (s *Store) Dispatches() dispatch.Repository { return dispatchRepo{s} }

// Warehouses returns the warehouses.Repository view of the store.
func (s *Store) Warehouses() warehouses.Repository { return warehouseRepo{s} }

// Audit returns the audit.Store view of the store.
func (s *Store) Audit() audit.Store { return auditRepo{s} }

// Sequences returns the sequence.Store view of the store.
func (s *Store) Sequences() SequenceStore { return SequenceStore{s} }
