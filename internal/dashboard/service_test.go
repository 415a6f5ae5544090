package dashboard_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/dashboard"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/platform/cache"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

var admin = shared.Actor{ID: 1, Role: shared.RoleAdmin}

func seed(t *testing.T, store *memstore.Store, quantities ...int) {
	t.Helper()
	ctx := context.Background()
	clock := shared.ClockFunc(func() time.Time { return time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC) })
	w := warehouses.Warehouse{Name: "Main Warehouse", IsActive: true}
	require.NoError(t, store.Warehouses().Create(ctx, &w))
	svc := inventory.NewService(inventory.ServiceConfig{
		Transactor: store,
		Repository: store.Inventory(),
		Warehouses: store.Warehouses(),
		Codes:      sequence.NewGenerator(store.Sequences()),
		Audit:      audit.NewTrail(store.Audit(), clock),
		Clock:      clock,
	})
	for i, q := range quantities {
		_, err := svc.CreateItem(ctx, admin, inventory.CreateItemRequest{
			ProductName: "Item " + string(rune('A'+i)),
			Category:    "Tools",
			Quantity:    q,
			Price:       decimal.NewFromInt(1),
			WarehouseID: w.ID,
		})
		require.NoError(t, err)
	}
}

func TestSummaryCountsLowStockInclusive(t *testing.T) {
	store := memstore.New()
	seed(t, store, 5, 20, 21)
	svc := dashboard.NewService(store.Inventory(), store.Warehouses(), store.Dispatches(), nil, nil, nil, 0)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 1, summary.TotalWarehouses)
	assert.Equal(t, 2, summary.LowStockCount)
	assert.Equal(t, dashboard.DefaultLowStockThreshold, summary.LowStockThreshold)
	assert.Zero(t, summary.PendingDispatches)
}

func TestSummaryCachedUntilWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := memstore.New()
	seed(t, store, 5)
	svc := dashboard.NewService(store.Inventory(), store.Warehouses(), store.Dispatches(),
		cache.NewVersioned(client, "dashboard", time.Minute), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 10)

	first, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalItems)

	w := warehouses.Warehouse{Name: "Overflow"}
	require.NoError(t, store.Warehouses().Create(context.Background(), &w))

	cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalWarehouses)

	write := svc.InvalidateOnWrite(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	write.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/warehouses", nil))

	fresh, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalWarehouses)
}
