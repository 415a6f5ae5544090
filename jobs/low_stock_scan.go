package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bosunhq/stockroom/internal/inventory"
	jobmetrics "github.com/bosunhq/stockroom/internal/jobs"
)

// DefaultLowStockThreshold matches the dashboard threshold.
const DefaultLowStockThreshold = 20

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LowStockLister lists items at or below a quantity threshold.
type LowStockLister interface {
	LowStock(ctx context.Context, threshold int) ([]inventory.Item, error)
}

// LowStockScanJob logs every item that needs restocking.
type LowStockScanJob struct {
	Items     LowStockLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Threshold int
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(items LowStockLister, threshold int, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Items: items, Threshold: threshold, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Items == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	threshold := payload.Threshold
	if threshold <= 0 {
		threshold = j.Threshold
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskLowStockScan)
	logger := j.logger().With(slog.Int("threshold", threshold))

	items, err := j.Items.LowStock(ctx, threshold)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, item := range items {
		logger.Warn("low stock",
			slog.String("item_code", item.ItemCode),
			slog.String("product_name", item.ProductName),
			slog.String("warehouse_id", item.WarehouseID.String()),
			slog.Int("quantity", item.Quantity),
		)
	}
	j.metrics().SetLowStock(len(items))
	logger.Info("completed low stock scan",
		slog.Int("items", len(items)),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
