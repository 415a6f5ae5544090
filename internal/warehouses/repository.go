package warehouses

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bosunhq/stockroom/internal/platform/db"
)

// Repository persists warehouses.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Warehouse, error)
	Get(ctx context.Context, id uuid.UUID) (Warehouse, error)
	// FindByName matches name case-insensitively.
	FindByName(ctx context.Context, name string) (Warehouse, error)
	Create(ctx context.Context, warehouse *Warehouse) error
	Count(ctx context.Context) (int, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const warehouseColumns = `id, name, address, city, state, postal_code, phone, is_active, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Warehouse, error) {
	query := psql.Select(warehouseColumns).From("warehouses").OrderBy("name")
	if filter.Search != "" {
		query = query.Where(sq.ILike{"name": "%" + filter.Search + "%"})
	}
	if filter.ActiveOnly {
		query = query.Where(sq.Eq{"is_active": true})
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QuerierFromCtx(ctx, r.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, db.MapError("warehouses: list", err)
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, db.MapError("warehouses: list", rows.Err())
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	row := db.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1`, id)
	w, err := scanWarehouse(row)
	if err != nil {
		return Warehouse{}, db.MapError("warehouses: get", err)
	}
	return w, nil
}

func (r *repository) FindByName(ctx context.Context, name string) (Warehouse, error) {
	row := db.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE LOWER(name) = LOWER($1)`, name)
	w, err := scanWarehouse(row)
	if err != nil {
		return Warehouse{}, db.MapError("warehouses: find by name", err)
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, w *Warehouse) error {
	_, err := db.QuerierFromCtx(ctx, r.pool).Exec(ctx, `INSERT INTO warehouses
		(id, name, address, city, state, postal_code, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.Name, w.Address, w.City, w.State, w.PostalCode, w.Phone, w.IsActive, w.CreatedAt, w.UpdatedAt)
	return db.MapError("warehouses: create", err)
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := db.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`).Scan(&n)
	return n, db.MapError("warehouses: count", err)
}

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.Name, &w.Address, &w.City, &w.State, &w.PostalCode, &w.Phone, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
