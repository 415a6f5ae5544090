package inventory

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bosunhq/stockroom/internal/platform/db"
	"github.com/bosunhq/stockroom/internal/shared"
)

// Repository persists inventory items and their price history.
type Repository interface {
	LedgerStore
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	// UpdateDetails writes every field except quantity.
	UpdateDetails(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ExistsByNameInWarehouse(ctx context.Context, productName string, warehouseID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Item, error)
	Count(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context, threshold int) (int, error)
	AppendPriceChange(ctx context.Context, change *PriceChange) error
	ListPriceChanges(ctx context.Context, itemID uuid.UUID) ([]PriceChange, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const itemColumns = `id, item_code, product_name, description, quantity, price::text, category, unit, warehouse_id, created_at, updated_at`

// PostgresRepository implements Repository on pgx. Calls join the unit of
// work carried by ctx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.QuerierFromCtx(ctx, r.pool)
}

// GetForUpdate locks the inventory row until the transaction ends.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	row := r.q(ctx).QueryRow(ctx, `SELECT `+itemColumns+` FROM inventories WHERE id = $1 FOR UPDATE`, id)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, db.MapError(fmt.Sprintf("inventory: lock item %s", id), err)
	}
	return item, nil
}

// SetQuantity overwrites the quantity of a locked row.
func (r *PostgresRepository) SetQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE inventories SET quantity = $2, updated_at = $3 WHERE id = $1`, id, quantity, at)
	if err != nil {
		return db.MapError("inventory: set quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: set quantity %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, item *Item) error {
	_, err := r.q(ctx).Exec(ctx, `INSERT INTO inventories
		(id, item_code, product_name, description, quantity, price, category, unit, warehouse_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11)`,
		item.ID, item.ItemCode, item.ProductName, item.Description, item.Quantity, item.Price.StringFixed(2),
		item.Category, item.Unit, item.WarehouseID, item.CreatedAt, item.UpdatedAt)
	return db.MapError("inventory: create item", err)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	row := r.q(ctx).QueryRow(ctx, `SELECT `+itemColumns+` FROM inventories WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, db.MapError(fmt.Sprintf("inventory: get item %s", id), err)
	}
	return item, nil
}

func (r *PostgresRepository) UpdateDetails(ctx context.Context, item *Item) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE inventories
		SET product_name = $2, description = $3, price = $4::numeric, category = $5, unit = $6, updated_at = $7
		WHERE id = $1`,
		item.ID, item.ProductName, item.Description, item.Price.StringFixed(2), item.Category, item.Unit, item.UpdatedAt)
	if err != nil {
		return db.MapError("inventory: update item", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: update item %s: %w", item.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM inventories WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("inventory: delete item %s: %w: item has dispatch history", id, shared.ErrInvalidInput)
		}
		return db.MapError("inventory: delete item", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: delete item %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventories WHERE item_code = $1)`, code).Scan(&exists)
	return exists, db.MapError("inventory: code exists", err)
}

func (r *PostgresRepository) ExistsByNameInWarehouse(ctx context.Context, productName string, warehouseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventories WHERE product_name = $1 AND warehouse_id = $2)`,
		productName, warehouseID).Scan(&exists)
	return exists, db.MapError("inventory: product exists", err)
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	query := psql.Select(itemColumns).From("inventories").OrderBy("product_name", "id")
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(sq.Or{sq.ILike{"product_name": pattern}, sq.ILike{"item_code": pattern}})
	}
	if filter.Category != "" {
		query = query.Where(sq.Eq{"category": filter.Category})
	}
	if filter.WarehouseID != nil {
		query = query.Where(sq.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.MaxQuantity != nil {
		query = query.Where(sq.LtOrEq{"quantity": *filter.MaxQuantity})
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
		return nil, db.MapError("inventory: list items", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, db.MapError("inventory: list items", rows.Err())
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventories`).Scan(&n)
	return n, db.MapError("inventory: count items", err)
}

func (r *PostgresRepository) CountLowStock(ctx context.Context, threshold int) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventories WHERE quantity <= $1`, threshold).Scan(&n)
	return n, db.MapError("inventory: count low stock", err)
}

func (r *PostgresRepository) AppendPriceChange(ctx context.Context, change *PriceChange) error {
	err := r.q(ctx).QueryRow(ctx, `INSERT INTO price_histories
		(inventory_id, old_price, new_price, changed_by, reason, created_at)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6)
		RETURNING id`,
		change.InventoryID, change.OldPrice.StringFixed(2), change.NewPrice.StringFixed(2),
		change.ChangedBy, change.Reason, change.CreatedAt).Scan(&change.ID)
	return db.MapError("inventory: append price change", err)
}

func (r *PostgresRepository) ListPriceChanges(ctx context.Context, itemID uuid.UUID) ([]PriceChange, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT id, inventory_id, old_price::text, new_price::text, changed_by, reason, created_at
		FROM price_histories WHERE inventory_id = $1 ORDER BY created_at DESC, id DESC`, itemID)
	if err != nil {
		return nil, db.MapError("inventory: list price changes", err)
	}
	defer rows.Close()
	var out []PriceChange
	for rows.Next() {
		var (
			pc       PriceChange
			oldPrice string
			newPrice string
		)
		if err := rows.Scan(&pc.ID, &pc.InventoryID, &oldPrice, &newPrice, &pc.ChangedBy, &pc.Reason, &pc.CreatedAt); err != nil {
			return nil, err
		}
		if pc.OldPrice, err = decimal.NewFromString(oldPrice); err != nil {
			return nil, fmt.Errorf("inventory: parse old price: %w", err)
		}
		if pc.NewPrice, err = decimal.NewFromString(newPrice); err != nil {
			return nil, fmt.Errorf("inventory: parse new price: %w", err)
		}
		out = append(out, pc)
	}
	return out, db.MapError("inventory: list price changes", rows.Err())
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item  Item
		price string
	)
	if err := row.Scan(&item.ID, &item.ItemCode, &item.ProductName, &item.Description, &item.Quantity,
		&price, &item.Category, &item.Unit, &item.WarehouseID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: parse price: %w", err)
	}
	item.Price = p
	return item, nil
}
