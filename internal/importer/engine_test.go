package importer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/importer"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

var actor = shared.Actor{ID: 9, Role: shared.RoleUser}

type failingItems struct {
	importer.ItemStore
	failOn string
}

func (f failingItems) Create(ctx context.Context, item *inventory.Item) error {
	if item.ProductName == f.failOn {
		return errors.New("disk on fire")
	}
	return f.ItemStore.Create(ctx, item)
}

func newEngine(store *memstore.Store, items importer.ItemStore) *importer.Engine {
	clock := shared.ClockFunc(func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) })
	if items == nil {
		items = store.Inventory()
	}
	return importer.NewEngine(importer.Config{
		Transactor: store,
		Items:      items,
		Warehouses: store.Warehouses(),
		Codes:      sequence.NewGenerator(store.Sequences()),
		Audit:      audit.NewTrail(store.Audit(), clock),
		Clock:      clock,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func row(n int, product, warehouse string) importer.Row {
	return importer.Row{Number: n, ProductName: product, Warehouse: warehouse, Category: "Tools", Quantity: "10", Price: "4.99"}
}

func bulkEntries(t *testing.T, store *memstore.Store) []audit.Entry {
	t.Helper()
	entries, _, err := store.Audit().List(context.Background(), audit.ListFilter{Action: audit.ActionBulkCreated})
	require.NoError(t, err)
	return entries
}

func TestImportSkipsDuplicateInBatch(t *testing.T) {
	store := memstore.New()
	res, err := newEngine(store, nil).ImportRows(context.Background(), actor, []importer.Row{
		row(2, "Hammer", "Main Warehouse"),
		row(3, "Hammer", "Main Warehouse"),
	})
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "ITM-20260315-0001", res.Created[0].ItemCode)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 3, res.Skipped[0].Row)
	assert.Equal(t, "Product 'Hammer' already exists in warehouse 'Main Warehouse'", res.Skipped[0].Reason)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "1 items imported successfully. 1 duplicate(s) skipped", res.Summary())

	entries := bulkEntries(t, store)
	require.Len(t, entries, 1)
	count, _ := entries[0].NewValues.Int("count")
	assert.Equal(t, 1, count)
	assert.Equal(t, "Bulk uploaded 1 inventory items via CSV/Excel (1 duplicates skipped)", entries[0].Description)
}

func TestImportIsIdempotentAcrossBatches(t *testing.T) {
	store := memstore.New()
	engine := newEngine(store, nil)
	rows := []importer.Row{row(2, "Hammer", "Main Warehouse"), row(3, "Saw", "main warehouse")}

	first, err := engine.ImportRows(context.Background(), actor, rows)
	require.NoError(t, err)
	require.Len(t, first.Created, 2)
	assert.Equal(t, first.Created[0].WarehouseID, first.Created[1].WarehouseID)

	second, err := engine.ImportRows(context.Background(), actor, rows)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, second.Skipped, 2)

	n, err := store.Warehouses().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, bulkEntries(t, store), 1)
}

func TestImportAutoCreatesWarehouse(t *testing.T) {
	store := memstore.New()
	res, err := newEngine(store, nil).ImportRows(context.Background(), actor, []importer.Row{row(2, "Hammer", "North Yard")})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)

	w, err := store.Warehouses().FindByName(context.Background(), "NORTH YARD")
	require.NoError(t, err)
	assert.Equal(t, "North Yard", w.Name)
	assert.Equal(t, warehouses.PlaceholderAddress, w.Address)
	assert.True(t, w.IsActive)
}

func TestImportRowIsolation(t *testing.T) {
	store := memstore.New()
	bad := row(3, "Saw", "Main Warehouse")
	bad.Quantity = "lots"
	res, err := newEngine(store, nil).ImportRows(context.Background(), actor, []importer.Row{
		row(2, "Hammer", "Main Warehouse"),
		bad,
		row(4, "Drill", "Main Warehouse"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.ErrorIs(t, res.Errors[0], shared.ErrInvalidInput)
	assert.Contains(t, res.Errors[0].Error(), "Row 3:")
}

func TestImportPersistenceFailureRollsBackOnlyThatRow(t *testing.T) {
	store := memstore.New()
	engine := newEngine(store, failingItems{ItemStore: store.Inventory(), failOn: "Saw"})
	res, err := engine.ImportRows(context.Background(), actor, []importer.Row{
		row(2, "Saw", "Fresh Yard"),
		row(3, "Hammer", "Main Warehouse"),
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	require.Len(t, res.Created, 1)

	// The warehouse created inside the failed row was rolled back with it.
	_, err = store.Warehouses().FindByName(context.Background(), "Fresh Yard")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestImportSkipsMissingWarehouseAndTakenCode(t *testing.T) {
	store := memstore.New()
	engine := newEngine(store, nil)
	first, err := engine.ImportRows(context.Background(), actor, []importer.Row{row(2, "Hammer", "Main Warehouse")})
	require.NoError(t, err)
	code := first.Created[0].ItemCode

	noWarehouse := row(2, "Saw", "  ")
	noWarehouse.Description = " Hand saw "
	taken := row(3, "Drill", "Main Warehouse")
	taken.ItemCode = code
	res, err := engine.ImportRows(context.Background(), actor, []importer.Row{noWarehouse, taken})
	require.NoError(t, err)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, importer.SkippedRow{
		Row:         2,
		ProductName: "Saw",
		Category:    "Tools",
		Quantity:    "10",
		Price:       "4.99",
		Description: "Hand saw",
		Reason:      "Warehouse is required",
	}, res.Skipped[0])
	assert.Equal(t, "Item code '"+code+"' already exists", res.Skipped[1].Reason)
	assert.Equal(t, code, res.Skipped[1].ItemCode)
	assert.Equal(t, "Main Warehouse", res.Skipped[1].Warehouse)
	assert.Empty(t, res.Created)
}

func TestImportValidationMessages(t *testing.T) {
	store := memstore.New()
	r := row(2, "", "Main Warehouse")
	r.Category = ""
	res, err := newEngine(store, nil).ImportRows(context.Background(), actor, []importer.Row{r})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "Product name is required")
	assert.Contains(t, res.Errors[0].Error(), "Category is required")
	assert.Empty(t, bulkEntries(t, store))
}

func TestImportCancelledContextPersistsNothing(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newEngine(store, nil).ImportRows(ctx, actor, []importer.Row{row(2, "Hammer", "Main Warehouse")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Created)

	n, err := store.Inventory().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
