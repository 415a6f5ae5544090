package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/shared"
)

type dispatchRepo struct{ s *Store }

func (r dispatchRepo) Create(ctx context.Context, d *dispatch.Dispatch) error {
	if d.Quantity <= 0 {
		return fmt.Errorf("memstore: dispatch: %w: quantity must be positive", shared.ErrInvalidInput)
	}
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.items[d.InventoryID]; !ok {
			return fmt.Errorf("memstore: item %s: %w", d.InventoryID, shared.ErrNotFound)
		}
		if _, ok := st.warehouses[d.WarehouseID]; !ok {
			return fmt.Errorf("memstore: warehouse %s: %w", d.WarehouseID, shared.ErrNotFound)
		}
		for _, existing := range st.dispatches {
			if existing.TransactionCode == d.TransactionCode {
				return fmt.Errorf("memstore: dispatch %s: %w", d.TransactionCode, shared.ErrDuplicateCode)
			}
		}
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		st.dispatches[d.ID] = *d
		return nil
	})
}

func (r dispatchRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (dispatch.Dispatch, error) {
	var d dispatch.Dispatch
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.dispatches[id]
		if !ok {
			return fmt.Errorf("memstore: dispatch %s: %w", id, shared.ErrNotFound)
		}
		d = found
		return nil
	})
	return d, err
}

func (r dispatchRepo) Get(ctx context.Context, id uuid.UUID) (dispatch.View, error) {
	var v dispatch.View
	err := r.s.do(ctx, func(st *state) error {
		d, ok := st.dispatches[id]
		if !ok {
			return fmt.Errorf("memstore: dispatch %s: %w", id, shared.ErrNotFound)
		}
		v = st.view(d)
		return nil
	})
	return v, err
}

func (r dispatchRepo) Update(ctx context.Context, d *dispatch.Dispatch) error {
	return r.s.do(ctx, func(st *state) error {
		current, ok := st.dispatches[d.ID]
		if !ok {
			return fmt.Errorf("memstore: dispatch %s: %w", d.ID, shared.ErrNotFound)
		}
		current.Status = d.Status
		current.Destination = d.Destination
		current.Notes = d.Notes
		current.DeliveredAt = d.DeliveredAt
		current.UpdatedAt = d.UpdatedAt
		st.dispatches[d.ID] = current
		return nil
	})
}

func (r dispatchRepo) List(ctx context.Context, filter dispatch.ListFilter) ([]dispatch.View, error) {
	var out []dispatch.View
	err := r.s.do(ctx, func(st *state) error {
		for _, d := range st.dispatches {
			if filter.WarehouseID != nil && d.WarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.InventoryID != nil && d.InventoryID != *filter.InventoryID {
				continue
			}
			if filter.DispatcherID != nil && d.DispatcherID != *filter.DispatcherID {
				continue
			}
			if filter.Status != nil && d.Status != *filter.Status {
				continue
			}
			out = append(out, st.view(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DispatchedAt.Equal(out[j].DispatchedAt) {
			return out[i].DispatchedAt.After(out[j].DispatchedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r dispatchRepo) CountByStatus(ctx context.Context, status dispatch.Status) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		for _, d := range st.dispatches {
			if d.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (st *state) view(d dispatch.Dispatch) dispatch.View {
	item := st.items[d.InventoryID]
	return dispatch.View{
		Dispatch:      d,
		ProductName:   item.ProductName,
		ItemCode:      item.ItemCode,
		WarehouseName: st.warehouses[d.WarehouseID].Name,
	}
}
