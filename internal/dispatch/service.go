package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

// StockLedger is the part of the inventory ledger a dispatch needs.
type StockLedger interface {
	Check(ctx context.Context, itemID uuid.UUID, amount int) (inventory.Item, error)
	Decrement(ctx context.Context, itemID uuid.UUID, amount int) (inventory.Movement, error)
}

// CodeGenerator reserves transaction codes.
type CodeGenerator interface {
	Next(ctx context.Context, prefix string, date time.Time) (string, error)
}

// WarehouseLookup resolves the source warehouse.
type WarehouseLookup interface {
	Get(ctx context.Context, id uuid.UUID) (warehouses.Warehouse, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Append(ctx context.Context, actor shared.Actor, rec audit.Record) (audit.Entry, error)
}

// MetricsRecorder counts dispatch attempts by outcome.
type MetricsRecorder interface {
	RecordDispatch(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDispatch(string) {}

// ServiceConfig groups the collaborators of Service.
type ServiceConfig struct {
	Transactor         shared.Transactor
	Repository         Repository
	Ledger             StockLedger
	Codes              CodeGenerator
	Warehouses         WarehouseLookup
	Audit              AuditPort
	Clock              shared.Clock
	Logger             *slog.Logger
	Metrics            MetricsRecorder
	DefaultDestination string
}

// Service creates dispatches and drives their lifecycle.
type Service struct {
	tx                 shared.Transactor
	repo               Repository
	ledger             StockLedger
	codes              CodeGenerator
	warehouses         WarehouseLookup
	audit              AuditPort
	clock              shared.Clock
	lifecycle          Lifecycle
	logger             *slog.Logger
	metrics            MetricsRecorder
	defaultDestination string
}

// NewService builds Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		tx:                 cfg.Transactor,
		repo:               cfg.Repository,
		ledger:             cfg.Ledger,
		codes:              cfg.Codes,
		warehouses:         cfg.Warehouses,
		audit:              cfg.Audit,
		clock:              cfg.Clock,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		defaultDestination: strings.TrimSpace(cfg.DefaultDestination),
	}
	if s.clock == nil {
		s.clock = shared.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.defaultDestination == "" {
		s.defaultDestination = DefaultDestination
	}
	s.lifecycle = NewLifecycle(s.clock)
	return s
}

// CreateDispatch debits the item and records a pending dispatch in one unit
// of work: check stock under lock, reserve a DSP code, decrement, persist,
// append the audit entry. A failure after the code is reserved rolls back
// everything except the code, which is never reused.
func (s *Service) CreateDispatch(ctx context.Context, actor shared.Actor, req CreateRequest) (View, error) {
	if !actor.IsPrivileged() {
		return View{}, fmt.Errorf("dispatch: create: %w: only admin can create dispatches", shared.ErrUnauthorized)
	}
	if req.InventoryID == uuid.Nil {
		return View{}, fmt.Errorf("dispatch: create: %w: inventory item is required", shared.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return View{}, fmt.Errorf("dispatch: create: %w", shared.ErrInvalidQuantity)
	}
	if err := checkDestination(req.Destination); err != nil {
		return View{}, fmt.Errorf("dispatch: create: %w", err)
	}
	destination := s.defaultDestination
	if req.Destination != nil && strings.TrimSpace(*req.Destination) != "" {
		destination = strings.TrimSpace(*req.Destination)
	}

	var (
		view   View
		before int
		after  int
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		item, err := s.ledger.Check(ctx, req.InventoryID, req.Quantity)
		if err != nil {
			return err
		}
		warehouseID := req.WarehouseID
		if warehouseID == uuid.Nil {
			warehouseID = item.WarehouseID
		}
		warehouse, err := s.warehouses.Get(ctx, warehouseID)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", warehouseID, err)
		}
		if warehouse.ID != item.WarehouseID {
			return fmt.Errorf("%w: item %s is not stocked in warehouse %s", shared.ErrInvalidInput, item.ItemCode, warehouse.Name)
		}

		now := s.clock.Now()
		code, err := s.codes.Next(ctx, sequence.PrefixDispatch, now)
		if err != nil {
			return err
		}
		mv, err := s.ledger.Decrement(ctx, item.ID, req.Quantity)
		if err != nil {
			return err
		}
		before, after = mv.Before, mv.After

		d := Dispatch{
			ID:              uuid.New(),
			TransactionCode: code,
			InventoryID:     item.ID,
			WarehouseID:     warehouse.ID,
			DispatcherID:    actor.ID,
			Quantity:        req.Quantity,
			Destination:     destination,
			Notes:           normalizeNotes(req.Notes),
			Status:          StatusPending,
			DispatchedAt:    now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Create(ctx, &d); err != nil {
			return err
		}

		snapshot, err := audit.Snapshot(d)
		if err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, actor, audit.Record{
			Action:    audit.ActionDispatched,
			ModelType: audit.ModelDispatch,
			ModelID:   &d.ID,
			Description: fmt.Sprintf("Dispatched %d x %s to %s (stock %d → %d)",
				d.Quantity, item.ProductName, d.Destination, mv.Before, mv.After),
			Old: audit.QuantityValues(mv.Before),
			New: snapshot,
		}); err != nil {
			return err
		}

		view = View{Dispatch: d, ProductName: item.ProductName, ItemCode: item.ItemCode, WarehouseName: warehouse.Name}
		return nil
	})
	if err != nil {
		var insufficient *shared.InsufficientStockError
		if errors.As(err, &insufficient) {
			s.metrics.RecordDispatch("insufficient_stock")
			s.logger.Info("dispatch rejected",
				slog.String("inventory_id", req.InventoryID.String()),
				slog.Int("available", insufficient.Available),
				slog.Int("requested", insufficient.Requested),
			)
		} else {
			s.metrics.RecordDispatch("failed")
		}
		return View{}, fmt.Errorf("dispatch: create: %w", err)
	}
	s.metrics.RecordDispatch("created")
	s.logger.Info("dispatch created",
		slog.String("transaction_code", view.TransactionCode),
		slog.String("inventory_id", view.InventoryID.String()),
		slog.Int("quantity", view.Quantity),
		slog.Int("stock_before", before),
		slog.Int("stock_after", after),
	)
	return view, nil
}

// UpdateStatus is UpdateDispatch with only a status change.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id uuid.UUID, status Status) (View, error) {
	return s.UpdateDispatch(ctx, actor, id, UpdateRequest{Status: &status})
}

// UpdateDispatch applies a status transition and destination/notes edits under
// a row lock. A same-status request changes nothing and writes no audit entry.
func (s *Service) UpdateDispatch(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateRequest) (View, error) {
	if err := checkDestination(req.Destination); err != nil {
		return View{}, fmt.Errorf("dispatch: update %s: %w", id, err)
	}
	var view View
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next := current

		statusChanged := false
		if req.Status != nil {
			if statusChanged, err = s.lifecycle.Transition(&next, *req.Status); err != nil {
				return err
			}
		}
		detailsChanged := false
		if req.Destination != nil {
			if dest := strings.TrimSpace(*req.Destination); dest != "" && dest != next.Destination {
				next.Destination = dest
				detailsChanged = true
			}
		}
		if req.Notes != nil {
			notes := normalizeNotes(req.Notes)
			if !equalNotes(notes, next.Notes) {
				next.Notes = notes
				detailsChanged = true
			}
		}

		if !statusChanged && !detailsChanged {
			view, err = s.repo.Get(ctx, id)
			return err
		}
		next.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		if view, err = s.repo.Get(ctx, id); err != nil {
			return err
		}

		if statusChanged {
			if _, err := s.audit.Append(ctx, actor, audit.Record{
				Action:    audit.ActionStatusChanged,
				ModelType: audit.ModelDispatch,
				ModelID:   &next.ID,
				Description: fmt.Sprintf("Dispatch %s of %s to %s changed from %s to %s",
					next.TransactionCode, view.ProductName, next.Destination, current.Status, next.Status),
				Old: audit.StatusValues(string(current.Status)),
				New: audit.StatusValues(string(next.Status)),
			}); err != nil {
				return err
			}
		}
		if detailsChanged {
			if _, err := s.audit.Append(ctx, actor, audit.Record{
				Action:      audit.ActionUpdated,
				ModelType:   audit.ModelDispatch,
				ModelID:     &next.ID,
				Description: fmt.Sprintf("Updated dispatch %s of %s", next.TransactionCode, view.ProductName),
				Old:         detailValues(current),
				New:         detailValues(next),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return View{}, fmt.Errorf("dispatch: update %s: %w", id, err)
	}
	return view, nil
}

// Get returns one dispatch with product and warehouse names.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("dispatch: get: %w", err)
	}
	return v, nil
}

// List returns dispatches matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]View, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("dispatch: list: %w: unknown status %q", shared.ErrInvalidInput, *filter.Status)
	}
	views, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list: %w", err)
	}
	return views, nil
}

func checkDestination(destination *string) error {
	if destination == nil {
		return nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(*destination)) > MaxDestinationLength {
		return fmt.Errorf("%w: destination must be at most %d characters", shared.ErrInvalidInput, MaxDestinationLength)
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalNotes(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func detailValues(d Dispatch) audit.Values {
	v := audit.Values{"destination": d.Destination, "notes": nil}
	if d.Notes != nil {
		v["notes"] = *d.Notes
	}
	return v
}

// CountByStatus counts dispatches in status.
func (s *Service) CountByStatus(ctx context.Context, status Status) (int, error) {
	if !status.IsValid() {
		return 0, fmt.Errorf("dispatch: count: %w: unknown status %q", shared.ErrInvalidInput, status)
	}
	n, err := s.repo.CountByStatus(ctx, status)
	if err != nil {
		return 0, fmt.Errorf("dispatch: count: %w", err)
	}
	return n, nil
}
