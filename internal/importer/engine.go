// Package importer bulk-creates inventory items from tabular rows. Each row
// runs in its own savepoint inside one outer unit of work, so a bad row never
// takes its neighbours down with it.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

// ItemStore is the inventory persistence the engine writes through.
type ItemStore interface {
	ExistsByNameInWarehouse(ctx context.Context, productName string, warehouseID uuid.UUID) (bool, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, item *inventory.Item) error
}

// WarehouseStore resolves and auto-creates warehouses by name.
type WarehouseStore interface {
	FindByName(ctx context.Context, name string) (warehouses.Warehouse, error)
	Create(ctx context.Context, warehouse *warehouses.Warehouse) error
}

// CodeGenerator reserves item codes.
type CodeGenerator interface {
	Next(ctx context.Context, prefix string, date time.Time) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Append(ctx context.Context, actor shared.Actor, rec audit.Record) (audit.Entry, error)
}

// SkippedRow is a row that was intentionally not imported. Cell values are
// echoed back as uploaded so the row can be corrected and resubmitted.
type SkippedRow struct {
	Row         int    `json:"row"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	Warehouse   string `json:"warehouse"`
	Reason      string `json:"reason"`
}

// RowImportError reports a row that failed validation or persistence.
type RowImportError struct {
	Row int
	Err error
}

func (e *RowImportError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e *RowImportError) Unwrap() error {
	return e.Err
}

// Result lists every input row in exactly one of Created, Skipped or Errors.
type Result struct {
	Created []inventory.Item
	Skipped []SkippedRow
	Errors  []*RowImportError
}

// Summary is the message shown to the uploader.
func (r Result) Summary() string {
	msg := fmt.Sprintf("%d items imported successfully", len(r.Created))
	if len(r.Skipped) > 0 {
		msg += fmt.Sprintf(". %d duplicate(s) skipped", len(r.Skipped))
	}
	return msg
}

// MetricsRecorder counts imported rows by outcome.
type MetricsRecorder interface {
	RecordImport(created, skipped, failed int)
}

type noopMetrics struct{}

func (noopMetrics) RecordImport(int, int, int) {}

// Config groups the collaborators of Engine.
type Config struct {
	Transactor shared.Transactor
	Items      ItemStore
	Warehouses WarehouseStore
	Codes      CodeGenerator
	Audit      AuditPort
	Clock      shared.Clock
	Logger     *slog.Logger
	Metrics    MetricsRecorder
}

// Engine imports rows.
type Engine struct {
	tx         shared.Transactor
	items      ItemStore
	warehouses WarehouseStore
	codes      CodeGenerator
	audit      AuditPort
	clock      shared.Clock
	logger     *slog.Logger
	metrics    MetricsRecorder
	validate   *validator.Validate
}

// NewEngine builds an Engine.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		tx:         cfg.Transactor,
		items:      cfg.Items,
		warehouses: cfg.Warehouses,
		codes:      cfg.Codes,
		audit:      cfg.Audit,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		validate:   validator.New(),
	}
	if e.clock == nil {
		e.clock = shared.SystemClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	return e
}

type rowInput struct {
	ProductName string `validate:"required,max=255"`
	Category    string `validate:"required,max=255"`
	Quantity    string `validate:"required,number"`
	Price       string `validate:"required,numeric"`
	Unit        string `validate:"omitempty,max=50"`
	ItemCode    string `validate:"omitempty,max=64"`
	Warehouse   string `validate:"required,max=255"`
}

var fieldMessages = map[string]string{
	"ProductName.required": "Product name is required",
	"Category.required":    "Category is required",
	"Quantity.required":    "Quantity is required",
	"Quantity.number":      "Quantity must be a whole number",
	"Price.required":       "Price is required",
	"Price.numeric":        "Price must be a number",
	"Unit.max":             "Unit must be 50 characters or less",
	"Warehouse.required":   "Warehouse is required",
}

// skip aborts a row's savepoint without counting the row as an error.
type skip struct {
	row SkippedRow
}

func (s *skip) Error() string { return s.row.Reason }

// ImportRows imports rows inside one outer unit of work. Only an error from
// the outer unit itself (for example a cancelled context) is returned; in that
// case nothing is persisted and the Result is empty.
func (e *Engine) ImportRows(ctx context.Context, actor shared.Actor, rows []Row) (Result, error) {
	var result Result
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		result = Result{}
		cache := make(map[string]uuid.UUID)
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, pending, err := e.importRow(ctx, row, cache)
			var skipped *skip
			switch {
			case err == nil:
				for k, v := range pending {
					cache[k] = v
				}
				result.Created = append(result.Created, item)
			case errors.As(err, &skipped):
				result.Skipped = append(result.Skipped, skipped.row)
				e.logger.Info("import row skipped", slog.Int("row", row.Number), slog.String("reason", skipped.row.Reason))
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				rowErr := &RowImportError{Row: row.Number, Err: err}
				result.Errors = append(result.Errors, rowErr)
				e.logger.Warn("import row failed", slog.Int("row", row.Number), slog.Any("error", err))
			}
		}
		if len(result.Created) == 0 {
			return nil
		}
		codes := make([]string, 0, len(result.Created))
		for _, item := range result.Created {
			codes = append(codes, item.ItemCode)
		}
		description := fmt.Sprintf("Bulk uploaded %d inventory items via CSV/Excel", len(result.Created))
		if len(result.Skipped) > 0 {
			description += fmt.Sprintf(" (%d duplicates skipped)", len(result.Skipped))
		}
		_, err := e.audit.Append(ctx, actor, audit.Record{
			Action:      audit.ActionBulkCreated,
			ModelType:   audit.ModelInventory,
			Description: description,
			New:         audit.BulkValues(codes),
		})
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("importer: import rows: %w", err)
	}
	e.metrics.RecordImport(len(result.Created), len(result.Skipped), len(result.Errors))
	e.logger.Info("import finished",
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// importRow runs one row in a savepoint. pending holds warehouse cache entries
// that only become visible once the savepoint has been released.
func (e *Engine) importRow(ctx context.Context, row Row, cache map[string]uuid.UUID) (inventory.Item, map[string]uuid.UUID, error) {
	trim := func(v string) string { return strings.TrimSpace(v) }
	in := rowInput{
		ProductName: trim(row.ProductName),
		Category:    trim(row.Category),
		Quantity:    trim(row.Quantity),
		Price:       trim(row.Price),
		Unit:        trim(row.Unit),
		ItemCode:    trim(row.ItemCode),
		Warehouse:   trim(row.Warehouse),
	}
	skipped := SkippedRow{
		Row:         row.Number,
		ProductName: in.ProductName,
		Category:    in.Category,
		Quantity:    in.Quantity,
		Price:       in.Price,
		ItemCode:    in.ItemCode,
		Description: trim(row.Description),
		Warehouse:   in.Warehouse,
	}

	if in.Warehouse == "" {
		skipped.Reason = "Warehouse is required"
		return inventory.Item{}, nil, &skip{row: skipped}
	}
	if err := e.validate.Struct(in); err != nil {
		return inventory.Item{}, nil, validationError(err)
	}
	quantity, err := strconv.Atoi(in.Quantity)
	if err != nil || quantity < 0 {
		return inventory.Item{}, nil, fmt.Errorf("%w: Quantity must be a whole number of at least 0", shared.ErrInvalidInput)
	}
	price, err := inventory.ParsePrice(in.Price)
	if err != nil {
		return inventory.Item{}, nil, err
	}
	if in.Unit == "" {
		in.Unit = inventory.DefaultUnit
	}

	var (
		item    inventory.Item
		pending map[string]uuid.UUID
	)
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		pending = make(map[string]uuid.UUID, 1)
		warehouseID, err := e.resolveWarehouse(ctx, in.Warehouse, cache, pending)
		if err != nil {
			return err
		}
		exists, err := e.items.ExistsByNameInWarehouse(ctx, in.ProductName, warehouseID)
		if err != nil {
			return err
		}
		if exists {
			skipped.Reason = fmt.Sprintf("Product '%s' already exists in warehouse '%s'", in.ProductName, in.Warehouse)
			return &skip{row: skipped}
		}

		now := e.clock.Now()
		code := in.ItemCode
		if code == "" {
			if code, err = e.codes.Next(ctx, sequence.PrefixItem, now); err != nil {
				return err
			}
		} else {
			taken, err := e.items.ExistsByCode(ctx, code)
			if err != nil {
				return err
			}
			if taken {
				skipped.Reason = fmt.Sprintf("Item code '%s' already exists", code)
				return &skip{row: skipped}
			}
		}

		item = inventory.Item{
			ID:          uuid.New(),
			ItemCode:    code,
			ProductName: in.ProductName,
			Description: trim(row.Description),
			Quantity:    quantity,
			Price:       price,
			Category:    in.Category,
			Unit:        in.Unit,
			WarehouseID: warehouseID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return e.items.Create(ctx, &item)
	})
	if err != nil {
		return inventory.Item{}, nil, err
	}
	return item, pending, nil
}

func (e *Engine) resolveWarehouse(ctx context.Context, name string, cache, pending map[string]uuid.UUID) (uuid.UUID, error) {
	key := cases.Fold().String(name)
	if id, ok := cache[key]; ok {
		return id, nil
	}
	found, err := e.warehouses.FindByName(ctx, name)
	switch {
	case err == nil:
		pending[key] = found.ID
		return found.ID, nil
	case !errors.Is(err, shared.ErrNotFound):
		return uuid.Nil, err
	}

	now := e.clock.Now()
	created := warehouses.Warehouse{
		ID:        uuid.New(),
		Name:      name,
		Address:   warehouses.PlaceholderAddress,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.warehouses.Create(ctx, &created); err != nil {
		return uuid.Nil, fmt.Errorf("create warehouse %q: %w", name, err)
	}
	e.logger.Info("warehouse auto-created", slog.String("name", name), slog.String("warehouse_id", created.ID.String()))
	pending[key] = created.ID
	return created.ID, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
		}
		messages = append(messages, msg)
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(messages, ", "))
}
