// Package dashboard serves the stock overview: item and warehouse totals, the
// low-stock count and pending dispatches.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/shared"
)

// DefaultLowStockThreshold marks an item as low when quantity <= threshold.
const DefaultLowStockThreshold = 20

// Summary is the dashboard payload.
type Summary struct {
	TotalItems        int       `json:"total_items"`
	TotalWarehouses   int       `json:"total_warehouses"`
	LowStockCount     int       `json:"low_stock_count"`
	PendingDispatches int       `json:"pending_dispatches"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// ItemCounter counts inventory lines.
type ItemCounter interface {
	Count(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context, threshold int) (int, error)
}

// WarehouseCounter counts warehouses.
type WarehouseCounter interface {
	Count(ctx context.Context) (int, error)
}

// DispatchCounter counts dispatches by status.
type DispatchCounter interface {
	CountByStatus(ctx context.Context, status dispatch.Status) (int, error)
}

// Cache stores computed summaries between writes.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Service computes and caches the summary.
type Service struct {
	items      ItemCounter
	warehouses WarehouseCounter
	dispatches DispatchCounter
	cache      Cache
	clock      shared.Clock
	logger     *slog.Logger
	threshold  int
	group      singleflight.Group
}

// NewService builds the dashboard service. cache may be nil.
func NewService(items ItemCounter, warehouses WarehouseCounter, dispatches DispatchCounter, cache Cache, clock shared.Clock, logger *slog.Logger, threshold int) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Service{items: items, warehouses: warehouses, dispatches: dispatches, cache: cache, clock: clock, logger: logger, threshold: threshold}
}

// Threshold returns the low-stock threshold in use.
func (s *Service) Threshold() int {
	return s.threshold
}

// Summary returns the cached summary, computing it once per cache version
// even under concurrent requests.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	if s.cache == nil {
		return s.compute(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "summary", strconv.Itoa(s.threshold))
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		return s.compute(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out Summary
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, fmt.Errorf("dashboard: summary: %w", res.Err)
		}
		return res.Val.(Summary), nil
	}
}

// Invalidate drops cached summaries. Failures are only logged.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) compute(ctx context.Context) (Summary, error) {
	out := Summary{LowStockThreshold: s.threshold, GeneratedAt: s.clock.Now()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.items.Count(ctx)
		out.TotalItems = n
		return err
	})
	g.Go(func() error {
		n, err := s.warehouses.Count(ctx)
		out.TotalWarehouses = n
		return err
	})
	g.Go(func() error {
		n, err := s.items.CountLowStock(ctx, s.threshold)
		out.LowStockCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.dispatches.CountByStatus(ctx, dispatch.StatusPending)
		out.PendingDispatches = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("dashboard: compute: %w", err)
	}
	return out, nil
}
