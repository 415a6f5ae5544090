package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

var (
	admin = shared.Actor{ID: 1, Role: shared.RoleAdmin, IPAddress: "10.0.0.1"}
	staff = shared.Actor{ID: 2, Role: shared.RoleUser}
)

type fixture struct {
	now       time.Time
	store     *memstore.Store
	items     *inventory.Service
	svc       *dispatch.Service
	warehouse warehouses.Warehouse
	outcomes  *outcomeRecorder
	newSvc    func(repo dispatch.Repository) *dispatch.Service
}

type outcomeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *outcomeRecorder) RecordDispatch(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[outcome]++
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC), store: memstore.New()}
	f.outcomes = &outcomeRecorder{counts: make(map[string]int)}
	clock := shared.ClockFunc(func() time.Time { return f.now })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trail := audit.NewTrail(f.store.Audit(), clock)
	codes := sequence.NewGenerator(f.store.Sequences())

	f.items = inventory.NewService(inventory.ServiceConfig{
		Transactor: f.store,
		Repository: f.store.Inventory(),
		Warehouses: f.store.Warehouses(),
		Codes:      codes,
		Audit:      trail,
		Clock:      clock,
		Logger:     logger,
	})
	f.newSvc = func(repo dispatch.Repository) *dispatch.Service {
		return dispatch.NewService(dispatch.ServiceConfig{
			Transactor: f.store,
			Repository: repo,
			Ledger:     f.items.Ledger(),
			Codes:      codes,
			Warehouses: f.store.Warehouses(),
			Audit:      trail,
			Clock:      clock,
			Logger:     logger,
			Metrics:    f.outcomes,
		})
	}
	f.svc = f.newSvc(f.store.Dispatches())
	f.warehouse = f.addWarehouse(t, "Main Warehouse")
	return f
}

func (f *fixture) addWarehouse(t *testing.T, name string) warehouses.Warehouse {
	t.Helper()
	w := warehouses.Warehouse{Name: name, IsActive: true, CreatedAt: f.now, UpdatedAt: f.now}
	require.NoError(t, f.store.Warehouses().Create(context.Background(), &w))
	return w
}

func (f *fixture) addItem(t *testing.T, qty int) inventory.Item {
	t.Helper()
	item, err := f.items.CreateItem(context.Background(), admin, inventory.CreateItemRequest{
		ProductName: "Hammer",
		Category:    "Tools",
		Quantity:    qty,
		Price:       decimal.NewFromInt(25),
		WarehouseID: f.warehouse.ID,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	item, err := f.items.Get(context.Background(), id)
	require.NoError(t, err)
	return item.Quantity
}

func (f *fixture) entries(t *testing.T, action audit.Action) []audit.Entry {
	t.Helper()
	entries, _, err := f.store.Audit().List(context.Background(), audit.ListFilter{Action: action, PerPage: 100})
	require.NoError(t, err)
	return entries
}

func TestCreateDispatchDebitsStock(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, 50)

	d, err := f.svc.CreateDispatch(context.Background(), admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 20})
	require.NoError(t, err)

	assert.Equal(t, "DSP-20260315-0001", d.TransactionCode)
	assert.Equal(t, dispatch.StatusPending, d.Status)
	assert.Equal(t, dispatch.DefaultDestination, d.Destination)
	assert.Equal(t, f.now, d.DispatchedAt)
	assert.Equal(t, f.warehouse.ID, d.WarehouseID)
	assert.Equal(t, "Main Warehouse", d.WarehouseName)
	assert.Equal(t, admin.ID, d.DispatcherID)
	assert.Equal(t, 30, f.quantity(t, item.ID))

	logged := f.entries(t, audit.ActionDispatched)
	require.Len(t, logged, 1)
	before, _ := logged[0].OldValues.Int("quantity")
	assert.Equal(t, 50, before)
	code, _ := logged[0].NewValues.String("transaction_code")
	assert.Equal(t, d.TransactionCode, code)
	assert.Equal(t, "Dispatched 20 x Hammer to Bosun Hardware (stock 50 → 30)", logged[0].Description)
}

func TestCreateDispatchInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	_, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 20})
	require.NoError(t, err)

	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 40})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var insufficient *shared.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 30, insufficient.Available)
	assert.Equal(t, 30, f.quantity(t, item.ID))
	assert.Len(t, f.entries(t, audit.ActionDispatched), 1)

	// A rejected dispatch never reserves a code.
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, "DSP-20260315-0002", d.TransactionCode)
}

func TestCreateDispatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 10)
	other := f.addWarehouse(t, "Overflow")

	_, err := f.svc.CreateDispatch(ctx, staff, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)

	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: uuid.New(), Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, WarehouseID: other.ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	long := strings.Repeat("é", dispatch.MaxDestinationLength+1)
	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 1, Destination: &long})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	fits := strings.Repeat("é", dispatch.MaxDestinationLength)
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 1, Destination: &fits})
	require.NoError(t, err)
	assert.Equal(t, fits, d.Destination)
	assert.Equal(t, "DSP-20260315-0001", d.TransactionCode)

	assert.Equal(t, 9, f.quantity(t, item.ID))
	assert.Len(t, f.entries(t, audit.ActionDispatched), 1)
}

func TestCreateDispatchValidationLeavesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 10)

	_, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: uuid.Nil, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	assert.Equal(t, 10, f.quantity(t, item.ID))
	assert.Empty(t, f.entries(t, audit.ActionDispatched))
}

type failingCreates struct {
	dispatch.Repository
	err error
}

func (r *failingCreates) Create(ctx context.Context, d *dispatch.Dispatch) error {
	if r.err != nil {
		return r.err
	}
	return r.Repository.Create(ctx, d)
}

func TestCreateDispatchFailureAfterCodeRollsBackAndLeavesGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)

	repo := &failingCreates{Repository: f.store.Dispatches(), err: errors.New("disk full")}
	svc := f.newSvc(repo)

	_, err := svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 20})
	require.Error(t, err)
	assert.Equal(t, 50, f.quantity(t, item.ID))
	assert.Empty(t, f.entries(t, audit.ActionDispatched))
	assert.Equal(t, 1, f.outcomes.counts["failed"])

	views, err := svc.List(ctx, dispatch.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)

	repo.err = nil
	d, err := svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 20})
	require.NoError(t, err)
	assert.Equal(t, "DSP-20260315-0002", d.TransactionCode)
	assert.Equal(t, 30, f.quantity(t, item.ID))
	assert.Len(t, f.entries(t, audit.ActionDispatched), 1)
}

func TestConcurrentDispatchesNeverOversell(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, 50)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateDispatch(context.Background(), admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 30})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		var insufficient *shared.InsufficientStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &insufficient):
			rejected++
			assert.Equal(t, 20, insufficient.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 20, f.quantity(t, item.ID))
}

func TestUpdateStatusToDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 5})
	require.NoError(t, err)

	f.now = f.now.Add(3 * time.Hour)
	updated, err := f.svc.UpdateStatus(ctx, staff, d.ID, dispatch.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusDelivered, updated.Status)
	require.NotNil(t, updated.DeliveredAt)
	assert.Equal(t, f.now, *updated.DeliveredAt)

	changes := f.entries(t, audit.ActionStatusChanged)
	require.Len(t, changes, 1)
	from, _ := changes[0].OldValues.String("status")
	to, _ := changes[0].NewValues.String("status")
	assert.Equal(t, "pending", from)
	assert.Equal(t, "delivered", to)

	// Same status again: nothing changes, nothing is logged.
	_, err = f.svc.UpdateStatus(ctx, staff, d.ID, dispatch.StatusDelivered)
	require.NoError(t, err)
	assert.Len(t, f.entries(t, audit.ActionStatusChanged), 1)

	_, err = f.svc.UpdateStatus(ctx, admin, d.ID, dispatch.StatusCancelled)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}

func TestUpdateViaInTransit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 5})
	require.NoError(t, err)

	mid, err := f.svc.UpdateStatus(ctx, admin, d.ID, dispatch.StatusInTransit)
	require.NoError(t, err)
	assert.Nil(t, mid.DeliveredAt)

	done, err := f.svc.UpdateStatus(ctx, admin, d.ID, dispatch.StatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, done.DeliveredAt)
	assert.Len(t, f.entries(t, audit.ActionStatusChanged), 2)
}

func TestCancelDoesNotRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 5})
	require.NoError(t, err)

	cancelled, err := f.svc.UpdateStatus(ctx, admin, d.ID, dispatch.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.DeliveredAt)
	assert.Equal(t, 45, f.quantity(t, item.ID))
}

func TestUpdateDispatchDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	d, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 5})
	require.NoError(t, err)

	dest, notes := "Harbour Depot", "fragile"
	updated, err := f.svc.UpdateDispatch(ctx, admin, d.ID, dispatch.UpdateRequest{Destination: &dest, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, dest, updated.Destination)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
	assert.Equal(t, dispatch.StatusPending, updated.Status)

	assert.Empty(t, f.entries(t, audit.ActionStatusChanged))
	require.Len(t, f.entries(t, audit.ActionUpdated), 1)

	_, err = f.svc.UpdateDispatch(ctx, admin, uuid.New(), dispatch.UpdateRequest{Destination: &dest})
	require.ErrorIs(t, err, shared.ErrNotFound)

	long := strings.Repeat("x", dispatch.MaxDestinationLength+1)
	_, err = f.svc.UpdateDispatch(ctx, admin, d.ID, dispatch.UpdateRequest{Destination: &long})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Len(t, f.entries(t, audit.ActionUpdated), 1)
}

func TestListAndCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 50)
	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Minute)
		_, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 1})
		require.NoError(t, err)
	}

	views, err := f.svc.List(ctx, dispatch.ListFilter{WarehouseID: &f.warehouse.ID})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "DSP-20260315-0003", views[0].TransactionCode)
	assert.Equal(t, "Hammer", views[0].ProductName)

	_, err = f.svc.UpdateStatus(ctx, admin, views[0].ID, dispatch.StatusInTransit)
	require.NoError(t, err)
	pending, err := f.svc.CountByStatus(ctx, dispatch.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	bad := dispatch.Status("lost")
	_, err = f.svc.List(ctx, dispatch.ListFilter{Status: &bad})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateDispatchRecordsOutcomes(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, 5)
	ctx := context.Background()

	_, err := f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: item.ID, Quantity: 3})
	require.Error(t, err)
	_, err = f.svc.CreateDispatch(ctx, admin, dispatch.CreateRequest{InventoryID: uuid.New(), Quantity: 1})
	require.Error(t, err)

	assert.Equal(t, map[string]int{"created": 1, "insufficient_stock": 1, "failed": 1}, f.outcomes.counts)
}
