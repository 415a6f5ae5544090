package dispatch

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bosunhq/stockroom/internal/platform/db"
	"github.com/bosunhq/stockroom/internal/shared"
)

// Repository persists dispatches.
type Repository interface {
	Create(ctx context.Context, d *Dispatch) error
	// GetForUpdate locks the dispatch row until the unit of work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (Dispatch, error)
	Get(ctx context.Context, id uuid.UUID) (View, error)
	// Update writes status, destination, notes, delivered_at and updated_at.
	Update(ctx context.Context, d *Dispatch) error
	List(ctx context.Context, filter ListFilter) ([]View, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const dispatchColumns = `d.id, d.transaction_code, d.inventory_id, d.warehouse_id, d.dispatcher_id, d.quantity,
	d.destination, d.notes, d.status::text, d.dispatched_at, d.delivered_at, d.created_at, d.updated_at`

const viewColumns = dispatchColumns + `, i.product_name, i.item_code, w.name`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) q(ctx context.Context) db.Querier {
	return db.QuerierFromCtx(ctx, r.pool)
}

func (r *repository) Create(ctx context.Context, d *Dispatch) error {
	_, err := r.q(ctx).Exec(ctx, `INSERT INTO dispatches
		(id, transaction_code, inventory_id, warehouse_id, dispatcher_id, quantity, destination, notes, status,
		 dispatched_at, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::dispatch_status, $10, $11, $12, $13)`,
		d.ID, d.TransactionCode, d.InventoryID, d.WarehouseID, d.DispatcherID, d.Quantity, d.Destination, d.Notes,
		string(d.Status), d.DispatchedAt, d.DeliveredAt, d.CreatedAt, d.UpdatedAt)
	return db.MapError("dispatch: create", err)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Dispatch, error) {
	row := r.q(ctx).QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches d WHERE d.id = $1 FOR UPDATE`, id)
	d, err := scanDispatch(row)
	if err != nil {
		return Dispatch{}, db.MapError(fmt.Sprintf("dispatch: lock %s", id), err)
	}
	return d, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (View, error) {
	sqlStr, args, err := r.viewQuery().Where(sq.Eq{"d.id": id}).ToSql()
	if err != nil {
		return View{}, err
	}
	v, err := scanView(r.q(ctx).QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return View{}, db.MapError(fmt.Sprintf("dispatch: get %s", id), err)
	}
	return v, nil
}

func (r *repository) Update(ctx context.Context, d *Dispatch) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE dispatches
		SET status = $2::dispatch_status, destination = $3, notes = $4, delivered_at = $5, updated_at = $6
		WHERE id = $1`,
		d.ID, string(d.Status), d.Destination, d.Notes, d.DeliveredAt, d.UpdatedAt)
	if err != nil {
		return db.MapError("dispatch: update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch: update %s: %w", d.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]View, error) {
	query := r.viewQuery().OrderBy("d.dispatched_at DESC", "d.id")
	if filter.WarehouseID != nil {
		query = query.Where(sq.Eq{"d.warehouse_id": *filter.WarehouseID})
	}
	if filter.InventoryID != nil {
		query = query.Where(sq.Eq{"d.inventory_id": *filter.InventoryID})
	}
	if filter.DispatcherID != nil {
		query = query.Where(sq.Eq{"d.dispatcher_id": *filter.DispatcherID})
	}
	if filter.Status != nil {
		query = query.Where(sq.Expr("d.status = ?::dispatch_status", string(*filter.Status)))
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.q(ctx).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, db.MapError("dispatch: list", err)
	}
	defer rows.Close()
	var out []View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, db.MapError("dispatch: list", rows.Err())
}

func (r *repository) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dispatches WHERE status = $1::dispatch_status`, string(status)).Scan(&n)
	return n, db.MapError("dispatch: count by status", err)
}

func (r *repository) viewQuery() sq.SelectBuilder {
	return psql.Select(viewColumns).
		From("dispatches d").
		Join("inventories i ON i.id = d.inventory_id").
		Join("warehouses w ON w.id = d.warehouse_id")
}

func dispatchFields(d *Dispatch, status *string) []any {
	return []any{
		&d.ID, &d.TransactionCode, &d.InventoryID, &d.WarehouseID, &d.DispatcherID, &d.Quantity,
		&d.Destination, &d.Notes, status, &d.DispatchedAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
	}
}

func scanDispatch(row pgx.Row) (Dispatch, error) {
	var (
		d      Dispatch
		status string
	)
	if err := row.Scan(dispatchFields(&d, &status)...); err != nil {
		return Dispatch{}, err
	}
	d.Status = Status(status)
	return d, nil
}

func scanView(row pgx.Row) (View, error) {
	var (
		v      View
		status string
	)
	fields := append(dispatchFields(&v.Dispatch, &status), &v.ProductName, &v.ItemCode, &v.WarehouseName)
	if err := row.Scan(fields...); err != nil {
		return View{}, err
	}
	v.Status = Status(status)
	return v, nil
}
