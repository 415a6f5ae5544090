package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

// WarehouseLookup resolves the warehouse that owns an item.
type WarehouseLookup interface {
	Get(ctx context.Context, id uuid.UUID) (warehouses.Warehouse, error)
}

// CodeGenerator reserves item codes.
type CodeGenerator interface {
	Next(ctx context.Context, prefix string, date time.Time) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Append(ctx context.Context, actor shared.Actor, rec audit.Record) (audit.Entry, error)
}

// ServiceConfig groups the collaborators of Service.
type ServiceConfig struct {
	Transactor shared.Transactor
	Repository Repository
	Ledger     *Ledger
	Warehouses WarehouseLookup
	Codes      CodeGenerator
	Audit      AuditPort
	Clock      shared.Clock
	Logger     *slog.Logger
}

// Service coordinates inventory operations. Quantity changes always go through
// the Ledger; every mutation appends an audit entry in the same unit of work.
type Service struct {
	tx         shared.Transactor
	repo       Repository
	ledger     *Ledger
	warehouses WarehouseLookup
	codes      CodeGenerator
	audit      AuditPort
	clock      shared.Clock
	logger     *slog.Logger
}

// NewService builds Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		tx:         cfg.Transactor,
		repo:       cfg.Repository,
		ledger:     cfg.Ledger,
		warehouses: cfg.Warehouses,
		codes:      cfg.Codes,
		audit:      cfg.Audit,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if s.clock == nil {
		s.clock = shared.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ledger == nil {
		s.ledger = NewLedger(s.tx, s.repo, s.clock)
	}
	return s
}

// Ledger exposes the stock ledger used by the service.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get item: %w", err)
	}
	return item, nil
}

// List returns items matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("inventory: list items: %w", err)
	}
	return items, nil
}

// LowStock returns items whose quantity is at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]Item, error) {
	return s.List(ctx, ListFilter{MaxQuantity: &threshold})
}

// PriceHistory returns the price changes of an item, newest first.
func (s *Service) PriceHistory(ctx context.Context, id uuid.UUID) ([]PriceChange, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("inventory: price history: %w", err)
	}
	changes, err := s.repo.ListPriceChanges(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inventory: price history: %w", err)
	}
	return changes, nil
}

// CreateItem adds a new stock line with its initial quantity.
func (s *Service) CreateItem(ctx context.Context, actor shared.Actor, req CreateItemRequest) (Item, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Category = strings.TrimSpace(req.Category)
	req.ItemCode = strings.TrimSpace(req.ItemCode)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.ProductName == "" || req.Category == "" {
		return Item{}, fmt.Errorf("inventory: create item: %w: product name and category are required", shared.ErrInvalidInput)
	}
	if req.WarehouseID == uuid.Nil {
		return Item{}, fmt.Errorf("inventory: create item: %w: warehouse is required", shared.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return Item{}, fmt.Errorf("inventory: create item: %w", shared.ErrInvalidQuantity)
	}
	if req.Price.IsNegative() {
		return Item{}, fmt.Errorf("inventory: create item: %w: price must not be negative", shared.ErrInvalidInput)
	}
	if req.Unit == "" {
		req.Unit = DefaultUnit
	}

	var item Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.warehouses.Get(ctx, req.WarehouseID); err != nil {
			return fmt.Errorf("warehouse %s: %w", req.WarehouseID, err)
		}
		exists, err := s.repo.ExistsByNameInWarehouse(ctx, req.ProductName, req.WarehouseID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: product %q already exists in warehouse", shared.ErrDuplicateProduct, req.ProductName)
		}
		now := s.clock.Now()
		code := req.ItemCode
		if code == "" {
			if code, err = s.codes.Next(ctx, sequence.PrefixItem, now); err != nil {
				return err
			}
		} else {
			taken, err := s.repo.ExistsByCode(ctx, code)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: item code %q already exists", shared.ErrDuplicateCode, code)
			}
		}
		item = Item{
			ID:          uuid.New(),
			ItemCode:    code,
			ProductName: req.ProductName,
			Description: req.Description,
			Quantity:    req.Quantity,
			Price:       req.Price.Round(2),
			Category:    req.Category,
			Unit:        req.Unit,
			WarehouseID: req.WarehouseID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, &item); err != nil {
			return err
		}
		snapshot, err := audit.Snapshot(item)
		if err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionCreated,
			ModelType:   audit.ModelInventory,
			ModelID:     &item.ID,
			Description: fmt.Sprintf("Added new inventory item: %s (Qty: %d)", item.ProductName, item.Quantity),
			New:         snapshot,
		})
		return err
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: create item: %w", err)
	}
	s.logger.Info("inventory item created",
		slog.String("item_id", item.ID.String()),
		slog.String("item_code", item.ItemCode),
		slog.Int("quantity", item.Quantity),
	)
	return item, nil
}

// UpdateItem edits an item. A non-privileged actor may only raise the quantity.
// Quantity changes are applied through the Ledger as a delta.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateItemRequest) (Item, error) {
	if req.Quantity != nil && *req.Quantity < 0 {
		return Item{}, fmt.Errorf("inventory: update item: %w", shared.ErrInvalidQuantity)
	}
	if req.Price != nil && req.Price.IsNegative() {
		return Item{}, fmt.Errorf("inventory: update item: %w: price must not be negative", shared.ErrInvalidInput)
	}

	var updated Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Quantity != nil && *req.Quantity < current.Quantity && !actor.IsPrivileged() {
			return fmt.Errorf("%w: only admin can decrease quantity", shared.ErrUnauthorized)
		}

		next, detailsChanged, priceChanged := applyDetails(current, req)
		if next.ProductName != current.ProductName {
			exists, err := s.repo.ExistsByNameInWarehouse(ctx, next.ProductName, next.WarehouseID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: product %q already exists in warehouse", shared.ErrDuplicateProduct, next.ProductName)
			}
		}
		quantityChanged := req.Quantity != nil && *req.Quantity != current.Quantity
		if !detailsChanged && !quantityChanged {
			updated = current
			return nil
		}

		now := s.clock.Now()
		if detailsChanged {
			next.UpdatedAt = now
			if err := s.repo.UpdateDetails(ctx, &next); err != nil {
				return err
			}
		}
		if priceChanged {
			change := PriceChange{
				InventoryID: current.ID,
				OldPrice:    current.Price,
				NewPrice:    next.Price,
				ChangedBy:   actor.ID,
				Reason:      req.PriceReason,
				CreatedAt:   now,
			}
			if err := s.repo.AppendPriceChange(ctx, &change); err != nil {
				return err
			}
		}
		if quantityChanged {
			var mv Movement
			if delta := *req.Quantity - current.Quantity; delta > 0 {
				mv, err = s.ledger.Increment(ctx, id, delta)
			} else {
				mv, err = s.ledger.Decrement(ctx, id, -delta)
			}
			if err != nil {
				return err
			}
			next.Quantity = mv.After
			next.UpdatedAt = mv.Item.UpdatedAt
		}

		oldSnap, err := audit.Snapshot(current)
		if err != nil {
			return err
		}
		newSnap, err := audit.Snapshot(next)
		if err != nil {
			return err
		}
		description := fmt.Sprintf("Updated inventory item: %s", next.ProductName)
		if quantityChanged {
			description += fmt.Sprintf(" (Qty: %d → %d)", current.Quantity, next.Quantity)
		}
		if _, err := s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionUpdated,
			ModelType:   audit.ModelInventory,
			ModelID:     &current.ID,
			Description: description,
			Old:         oldSnap,
			New:         newSnap,
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: update item: %w", err)
	}
	return updated, nil
}

func applyDetails(current Item, req UpdateItemRequest) (next Item, changed, priceChanged bool) {
	next = current
	setString := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = true
		}
	}
	setString(&next.ProductName, req.ProductName)
	setString(&next.Description, req.Description)
	setString(&next.Category, req.Category)
	setString(&next.Unit, req.Unit)
	if next.Unit == "" {
		next.Unit = DefaultUnit
	}
	if req.Price != nil {
		price := req.Price.Round(2)
		if !price.Equal(current.Price) {
			next.Price = price
			changed = true
			priceChanged = true
		}
	}
	return next, changed, priceChanged
}

// DeleteItem removes an item. Admin only.
func (s *Service) DeleteItem(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	if !actor.IsPrivileged() {
		return fmt.Errorf("inventory: delete item: %w: only admin can delete inventory", shared.ErrUnauthorized)
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		snapshot, err := audit.Snapshot(current)
		if err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionDeleted,
			ModelType:   audit.ModelInventory,
			ModelID:     &current.ID,
			Description: fmt.Sprintf("Deleted inventory item: %s (%s)", current.ProductName, current.ItemCode),
			Old:         snapshot,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("inventory: delete item: %w", err)
	}
	return nil
}

// AddStock increments the item's quantity. Any actor may add stock.
func (s *Service) AddStock(ctx context.Context, actor shared.Actor, id uuid.UUID, amount int) (Movement, error) {
	if amount <= 0 {
		return Movement{}, fmt.Errorf("inventory: add stock: %w", shared.ErrInvalidQuantity)
	}
	var mv Movement
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		mv, err = s.ledger.Increment(ctx, id, amount)
		if err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionStockAdded,
			ModelType:   audit.ModelInventory,
			ModelID:     &mv.Item.ID,
			Description: fmt.Sprintf("Added stock to %s: +%d (was %d, now %d)", mv.Item.ProductName, amount, mv.Before, mv.After),
			Old:         audit.QuantityValues(mv.Before),
			New:         audit.QuantityValues(mv.After),
		})
		return err
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: add stock: %w", err)
	}
	s.logger.Info("stock added", slog.String("item_id", id.String()), slog.Int("amount", amount), slog.Int("quantity", mv.After))
	return mv, nil
}

// RemoveStock decrements the item's quantity. Admin only.
func (s *Service) RemoveStock(ctx context.Context, actor shared.Actor, id uuid.UUID, amount int) (Movement, error) {
	if !actor.IsPrivileged() {
		return Movement{}, fmt.Errorf("inventory: remove stock: %w: only admin can remove stock", shared.ErrUnauthorized)
	}
	if amount <= 0 {
		return Movement{}, fmt.Errorf("inventory: remove stock: %w", shared.ErrInvalidQuantity)
	}
	var mv Movement
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		mv, err = s.ledger.Decrement(ctx, id, amount)
		if err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionStockRemoved,
			ModelType:   audit.ModelInventory,
			ModelID:     &mv.Item.ID,
			Description: fmt.Sprintf("Removed stock from %s: -%d (was %d, now %d)", mv.Item.ProductName, amount, mv.Before, mv.After),
			Old:         audit.QuantityValues(mv.Before),
			New:         audit.QuantityValues(mv.After),
		})
		return err
	})
	if err != nil {
		var insufficient *shared.InsufficientStockError
		if errors.As(err, &insufficient) {
			s.logger.Warn("stock removal rejected",
				slog.String("item_id", id.String()),
				slog.Int("available", insufficient.Available),
				slog.Int("requested", insufficient.Requested),
			)
		}
		return Movement{}, fmt.Errorf("inventory: remove stock: %w", err)
	}
	return mv, nil
}

// ParsePrice parses a price string into a 2-digit decimal.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q is not a number", shared.ErrInvalidInput, raw)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: price must not be negative", shared.ErrInvalidInput)
	}
	return d.Round(2), nil
}
