package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/shared"
)

var (
	now   = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	admin = shared.Actor{ID: 1, Role: shared.RoleAdmin, IPAddress: "192.0.2.10"}
	staff = shared.Actor{ID: 2, Role: shared.RoleUser}
)

func newTrail() (*audit.Trail, *memstore.Store) {
	store := memstore.New()
	return audit.NewTrail(store.Audit(), shared.ClockFunc(func() time.Time { return now })), store
}

func TestAppendStampsActorAndTime(t *testing.T) {
	trail, _ := newTrail()
	id := uuid.New()

	entry, err := trail.Append(context.Background(), admin, audit.Record{
		Action:      audit.ActionStockAdded,
		ModelType:   audit.ModelInventory,
		ModelID:     &id,
		Description: "Added stock to Hammer: +5 (was 10, now 15)",
		Old:         audit.QuantityValues(10),
		New:         audit.QuantityValues(15),
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, admin.ID, entry.ActorID)
	assert.Equal(t, now, entry.CreatedAt)
	assert.Equal(t, audit.SchemaVersion, entry.SchemaVersion)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "192.0.2.10", *entry.IPAddress)
}

func TestAppendRejectsIncompleteValues(t *testing.T) {
	trail, _ := newTrail()
	ctx := context.Background()

	_, err := trail.Append(ctx, admin, audit.Record{
		Action:      audit.ActionDispatched,
		ModelType:   audit.ModelDispatch,
		Description: "Dispatched",
		Old:         audit.QuantityValues(10),
		New:         audit.Values{"quantity": 2},
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = trail.Append(ctx, admin, audit.Record{Action: "exploded", ModelType: audit.ModelInventory, Description: "x"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = trail.Append(ctx, admin, audit.Record{Action: audit.ActionUpdated, ModelType: audit.ModelInventory})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAppendRollsBackWithUnitOfWork(t *testing.T) {
	trail, store := newTrail()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := trail.Append(ctx, admin, audit.Record{
			Action:      audit.ActionBulkCreated,
			ModelType:   audit.ModelInventory,
			Description: "Bulk uploaded 1 inventory items via CSV/Excel",
			New:         audit.BulkValues([]string{"ITM-20260315-0001"}),
		}); err != nil {
			return err
		}
		return shared.ErrInvalidInput
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, total, err := store.Audit().List(ctx, audit.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestServiceListIsAdminOnly(t *testing.T) {
	trail, store := newTrail()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := trail.Append(ctx, staff, audit.Record{
			Action:      audit.ActionStockAdded,
			ModelType:   audit.ModelInventory,
			Description: "Added stock",
			Old:         audit.QuantityValues(i),
			New:         audit.QuantityValues(i + 1),
		})
		require.NoError(t, err)
	}
	svc := audit.NewService(store.Audit(), nil)

	_, err := svc.List(ctx, staff, audit.ListFilter{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	page, err := svc.List(ctx, admin, audit.ListFilter{PerPage: 500})
	require.NoError(t, err)
	assert.Len(t, page.Entries, audit.DefaultPerPage)
	assert.Equal(t, 60, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	latest, ok := page.Entries[0].NewValues.Int("quantity")
	require.True(t, ok)
	assert.Equal(t, 60, latest)

	exported, err := svc.Export(ctx, admin, audit.ListFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, exported, 60)

	from, to := now.Add(time.Hour), now
	_, err = svc.List(ctx, admin, audit.ListFilter{From: &from, To: &to})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestWriteCSV(t *testing.T) {
	id := uuid.New()
	data, err := audit.WriteCSV([]audit.Entry{{
		ID:          3,
		ActorID:     1,
		Action:      audit.ActionStatusChanged,
		ModelType:   audit.ModelDispatch,
		ModelID:     &id,
		Description: "Dispatch DSP-20260315-0001 changed, pending to delivered",
		OldValues:   audit.StatusValues("pending"),
		NewValues:   audit.StatusValues("delivered"),
		CreatedAt:   now,
	}})
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "status_changed")
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, `"{""status"":""delivered""}"`)
}
