package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/shared"
)

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (inventory.Item, error) {
	return r.Get(ctx, id)
}

func (r inventoryRepo) SetQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error {
	if quantity < 0 || quantity > math.MaxInt32 {
		return fmt.Errorf("memstore: item %s: %w: quantity %d out of range", id, shared.ErrInvalidInput, quantity)
	}
	return r.s.do(ctx, func(st *state) error {
		item, ok := st.items[id]
		if !ok {
			return fmt.Errorf("memstore: item %s: %w", id, shared.ErrNotFound)
		}
		item.Quantity = quantity
		item.UpdatedAt = at
		st.items[id] = item
		return nil
	})
}

func (r inventoryRepo) Create(ctx context.Context, item *inventory.Item) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.warehouses[item.WarehouseID]; !ok {
			return fmt.Errorf("memstore: warehouse %s: %w", item.WarehouseID, shared.ErrNotFound)
		}
		for _, existing := range st.items {
			if existing.ItemCode == item.ItemCode {
				return fmt.Errorf("memstore: item code %s: %w", item.ItemCode, shared.ErrDuplicateCode)
			}
			if existing.ProductName == item.ProductName && existing.WarehouseID == item.WarehouseID {
				return fmt.Errorf("memstore: product %s: %w", item.ProductName, shared.ErrDuplicateProduct)
			}
		}
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		st.items[item.ID] = *item
		return nil
	})
}

func (r inventoryRepo) Get(ctx context.Context, id uuid.UUID) (inventory.Item, error) {
	var item inventory.Item
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.items[id]
		if !ok {
			return fmt.Errorf("memstore: item %s: %w", id, shared.ErrNotFound)
		}
		item = found
		return nil
	})
	return item, err
}

func (r inventoryRepo) UpdateDetails(ctx context.Context, item *inventory.Item) error {
	return r.s.do(ctx, func(st *state) error {
		current, ok := st.items[item.ID]
		if !ok {
			return fmt.Errorf("memstore: item %s: %w", item.ID, shared.ErrNotFound)
		}
		for id, existing := range st.items {
			if id != item.ID && existing.ProductName == item.ProductName && existing.WarehouseID == current.WarehouseID {
				return fmt.Errorf("memstore: product %s: %w", item.ProductName, shared.ErrDuplicateProduct)
			}
		}
		current.ProductName = item.ProductName
		current.Description = item.Description
		current.Price = item.Price
		current.Category = item.Category
		current.Unit = item.Unit
		current.UpdatedAt = item.UpdatedAt
		st.items[item.ID] = current
		return nil
	})
}

func (r inventoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.items[id]; !ok {
			return fmt.Errorf("memstore: item %s: %w", id, shared.ErrNotFound)
		}
		for _, d := range st.dispatches {
			if d.InventoryID == id {
				return fmt.Errorf("memstore: item %s: %w: item has dispatch history", id, shared.ErrInvalidInput)
			}
		}
		delete(st.items, id)
		kept := st.prices[:0]
		for _, pc := range st.prices {
			if pc.InventoryID != id {
				kept = append(kept, pc)
			}
		}
		st.prices = kept
		return nil
	})
}

func (r inventoryRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.s.do(ctx, func(st *state) error {
		for _, item := range st.items {
			if item.ItemCode == code {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (r inventoryRepo) ExistsByNameInWarehouse(ctx context.Context, productName string, warehouseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.s.do(ctx, func(st *state) error {
		for _, item := range st.items {
			if item.ProductName == productName && item.WarehouseID == warehouseID {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (r inventoryRepo) List(ctx context.Context, filter inventory.ListFilter) ([]inventory.Item, error) {
	var out []inventory.Item
	err := r.s.do(ctx, func(st *state) error {
		for _, item := range st.items {
			if filter.Search != "" && !containsFold(item.ProductName, filter.Search) && !containsFold(item.ItemCode, filter.Search) {
				continue
			}
			if filter.Category != "" && item.Category != filter.Category {
				continue
			}
			if filter.WarehouseID != nil && item.WarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.MaxQuantity != nil && item.Quantity > *filter.MaxQuantity {
				continue
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r inventoryRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		n = len(st.items)
		return nil
	})
	return n, err
}

func (r inventoryRepo) CountLowStock(ctx context.Context, threshold int) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		for _, item := range st.items {
			if item.Quantity <= threshold {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r inventoryRepo) AppendPriceChange(ctx context.Context, change *inventory.PriceChange) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.items[change.InventoryID]; !ok {
			return fmt.Errorf("memstore: item %s: %w", change.InventoryID, shared.ErrNotFound)
		}
		r.s.seqMu.Lock()
		r.s.nextPriceID++
		change.ID = r.s.nextPriceID
		r.s.seqMu.Unlock()
		st.prices = append(st.prices, *change)
		return nil
	})
}

func (r inventoryRepo) ListPriceChanges(ctx context.Context, itemID uuid.UUID) ([]inventory.PriceChange, error) {
	var out []inventory.PriceChange
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.prices) - 1; i >= 0; i-- {
			if st.prices[i].InventoryID == itemID {
				out = append(out, st.prices[i])
			}
		}
		return nil
	})
	return out, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
