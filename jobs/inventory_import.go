package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bosunhq/stockroom/internal/importer"
	jobmetrics "github.com/bosunhq/stockroom/internal/jobs"
	"github.com/bosunhq/stockroom/internal/shared"
)

// RowImporter is the importer the job delegates to.
type RowImporter interface {
	ImportRows(ctx context.Context, actor shared.Actor, rows []importer.Row) (importer.Result, error)
}

// InventoryImportJob runs uploaded CSV files through the bulk importer.
type InventoryImportJob struct {
	Importer RowImporter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewInventoryImportJob initialises the import handler.
func NewInventoryImportJob(importer RowImporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryImportJob {
	return &InventoryImportJob{Importer: importer, Logger: logger, Metrics: metrics}
}

// Handle parses and imports the payload. Malformed payloads and files are not
// retried.
func (j *InventoryImportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Importer == nil {
		return errors.New("inventory import: handler not configured")
	}
	var payload ImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskInventoryImport)
	start := time.Now()
	logger := j.logger().With(
		slog.String("filename", payload.Filename),
		slog.Int64("actor_id", payload.ActorID),
	)

	rows, err := importer.ParseFile(payload.Filename, bytes.NewReader(payload.Content))
	if err != nil {
		logger.Warn("import file rejected", slog.Any("error", err))
		return tracker.End(fmt.Errorf("inventory import: %v: %w", err, asynq.SkipRetry))
	}

	result, err := j.Importer.ImportRows(ctx, payload.Actor(), rows)
	if err != nil {
		logger.Error("import failed", slog.Any("error", err))
		return tracker.End(err)
	}

	j.metrics().AddImported("created", len(result.Created))
	j.metrics().AddImported("skipped", len(result.Skipped))
	j.metrics().AddImported("failed", len(result.Errors))
	for _, rowErr := range result.Errors {
		logger.Warn("import row error", slog.String("error", rowErr.Error()))
	}
	logger.Info("completed background import",
		slog.String("summary", result.Summary()),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *InventoryImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryImport))
	}
	return slog.Default().With(slog.String("job", TaskInventoryImport))
}

func (j *InventoryImportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
