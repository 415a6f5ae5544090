package warehouses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/shared"
)

// AuditPort records warehouse mutations.
type AuditPort interface {
	Append(ctx context.Context, actor shared.Actor, rec audit.Record) (audit.Entry, error)
}

type Service struct {
	tx     shared.Transactor
	repo   Repository
	audit  AuditPort
	clock  shared.Clock
	logger *slog.Logger
}

func NewService(tx shared.Transactor, repo Repository, trail AuditPort, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, repo: repo, audit: trail, clock: clock, logger: logger}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Warehouse, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	if id == uuid.Nil {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse ID", shared.ErrInvalidInput)
	}
	return s.repo.Get(ctx, id)
}

// Create adds a warehouse. Names are unique regardless of case.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Warehouse, error) {
	if !actor.IsPrivileged() {
		return Warehouse{}, fmt.Errorf("warehouses: create: %w", shared.ErrUnauthorized)
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate(req); err != nil {
		return Warehouse{}, err
	}

	now := s.clock.Now()
	w := Warehouse{
		ID:         uuid.New(),
		Name:       req.Name,
		Address:    req.Address,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Phone:      req.Phone,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindByName(ctx, w.Name); err == nil {
			return fmt.Errorf("%w: warehouse %q already exists", shared.ErrInvalidInput, w.Name)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err := s.repo.Create(ctx, &w); err != nil {
			return err
		}
		snapshot, err := audit.Snapshot(w)
		if err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionCreated,
			ModelType:   audit.ModelWarehouse,
			ModelID:     &w.ID,
			Description: fmt.Sprintf("Added new warehouse: %s", w.Name),
			New:         snapshot,
		})
		return err
	})
	if err != nil {
		return Warehouse{}, fmt.Errorf("warehouses: create: %w", err)
	}
	s.logger.Info("warehouse created", slog.String("warehouse_id", w.ID.String()), slog.String("name", w.Name))
	return w, nil
}
