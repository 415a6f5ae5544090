package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

type warehouseRepo struct{ s *Store }

func (r warehouseRepo) List(ctx context.Context, filter warehouses.ListFilter) ([]warehouses.Warehouse, error) {
	var out []warehouses.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		for _, w := range st.warehouses {
			if filter.ActiveOnly && !w.IsActive {
				continue
			}
			if !containsFold(w.Name, filter.Search) {
				continue
			}
			out = append(out, w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r warehouseRepo) Get(ctx context.Context, id uuid.UUID) (warehouses.Warehouse, error) {
	var w warehouses.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.warehouses[id]
		if !ok {
			return fmt.Errorf("memstore: warehouse %s: %w", id, shared.ErrNotFound)
		}
		w = found
		return nil
	})
	return w, err
}

func (r warehouseRepo) FindByName(ctx context.Context, name string) (warehouses.Warehouse, error) {
	var w warehouses.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		for _, candidate := range st.warehouses {
			if equalFold(candidate.Name, name) {
				w = candidate
				return nil
			}
		}
		return fmt.Errorf("memstore: warehouse %q: %w", name, shared.ErrNotFound)
	})
	return w, err
}

func (r warehouseRepo) Create(ctx context.Context, w *warehouses.Warehouse) error {
	return r.s.do(ctx, func(st *state) error {
		for _, existing := range st.warehouses {
			if equalFold(existing.Name, w.Name) {
				return fmt.Errorf("memstore: warehouse %q: %w: name already taken", w.Name, shared.ErrInvalidInput)
			}
		}
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		st.warehouses[w.ID] = *w
		return nil
	})
}

func (r warehouseRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		n = len(st.warehouses)
		return nil
	})
	return n, err
}
