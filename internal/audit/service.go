package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bosunhq/stockroom/internal/shared"
)

// DefaultPerPage adalah ukuran halaman default activity log.
const DefaultPerPage = 50

// Page membungkus hasil list dengan informasi paging.
type Page struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service menyediakan query activity log untuk admin.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService membuat service audit baru.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// List mengambil activity log terbaru lebih dulu. Hanya untuk admin.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) (Page, error) {
	if !actor.IsPrivileged() {
		return Page{}, fmt.Errorf("audit: list: %w", shared.ErrUnauthorized)
	}
	if filter.PerPage <= 0 {
		filter.PerPage = DefaultPerPage
	}
	if filter.PerPage > DefaultPerPage {
		filter.PerPage = DefaultPerPage
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return Page{}, fmt.Errorf("audit: list: %w: from after to", shared.ErrInvalidInput)
	}
	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("audit: list: %w", err)
	}
	return Page{Entries: entries, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Get mengambil satu entry. Hanya untuk admin.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Entry, error) {
	if !actor.IsPrivileged() {
		return Entry{}, fmt.Errorf("audit: get: %w", shared.ErrUnauthorized)
	}
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: get %d: %w", id, err)
	}
	return entry, nil
}

// Export mengambil seluruh entry sesuai filter, halaman demi halaman, untuk CSV.
func (s *Service) Export(ctx context.Context, actor shared.Actor, filter ListFilter, limit int) ([]Entry, error) {
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("audit: export: %w", shared.ErrUnauthorized)
	}
	filter.PerPage = DefaultPerPage
	var out []Entry
	for page := 1; limit <= 0 || len(out) < limit; page++ {
		filter.Page = page
		entries, _, err := s.store.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("audit: export: %w", err)
		}
		out = append(out, entries...)
		if len(entries) < filter.PerPage {
			break
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	s.logger.Info("audit export", slog.Int64("actor_id", actor.ID), slog.Int("rows", len(out)))
	return out, nil
}
