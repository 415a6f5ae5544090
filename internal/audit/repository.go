package audit

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bosunhq/stockroom/internal/platform/db"
	"github.com/bosunhq/stockroom/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var entryColumns = []string{
	"id", "user_id", "action", "model_type", "model_id", "description",
	"old_values", "new_values", "schema_version", "ip_address", "created_at",
}

// Repository menyimpan activity log di PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository activity log.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert menulis entry di dalam transaksi yang dibawa ctx, bila ada.
func (r *Repository) Insert(ctx context.Context, entry *Entry) error {
	oldJSON, err := marshalValues(entry.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}
	q := db.QuerierFromCtx(ctx, r.pool)
	err = q.QueryRow(ctx, `INSERT INTO activity_logs
		(user_id, action, model_type, model_id, description, old_values, new_values, schema_version, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		entry.ActorID, string(entry.Action), entry.ModelType, entry.ModelID, entry.Description,
		oldJSON, newJSON, entry.SchemaVersion, entry.IPAddress, entry.CreatedAt,
	).Scan(&entry.ID)
	return db.MapError("audit: insert entry", err)
}

// Get mengambil entry berdasarkan id.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	query, args, err := psql.Select(entryColumns...).From("activity_logs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Entry{}, err
	}
	row := db.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, db.MapError("audit: get entry", err)
	}
	return entry, nil
}

// List mengambil entry sesuai filter beserta total barisnya.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	where := sq.And{}
	if filter.Action != "" {
		where = append(where, sq.Eq{"action": string(filter.Action)})
	}
	if filter.ModelType != "" {
		where = append(where, sq.Eq{"model_type": filter.ModelType})
	}
	if filter.ModelID != nil {
		where = append(where, sq.Eq{"model_id": *filter.ModelID})
	}
	if filter.ActorID != nil {
		where = append(where, sq.Eq{"user_id": *filter.ActorID})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"created_at": *filter.To})
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	listQ := psql.Select(entryColumns...).From("activity_logs").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset()))
	countQ := psql.Select("COUNT(*)").From("activity_logs")
	if len(where) > 0 {
		listQ = listQ.Where(where)
		countQ = countQ.Where(where)
	}

	q := db.QuerierFromCtx(ctx, r.pool)

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError("audit: count entries", err)
	}

	listSQL, listArgs, err := listQ.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, db.MapError("audit: list entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.MapError("audit: list entries", err)
	}
	return entries, total, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry   Entry
		action  string
		oldJSON []byte
		newJSON []byte
	)
	if err := row.Scan(
		&entry.ID, &entry.ActorID, &action, &entry.ModelType, &entry.ModelID, &entry.Description,
		&oldJSON, &newJSON, &entry.SchemaVersion, &entry.IPAddress, &entry.CreatedAt,
	); err != nil {
		return Entry{}, err
	}
	entry.Action = Action(action)
	var err error
	if entry.OldValues, err = unmarshalValues(oldJSON); err != nil {
		return Entry{}, err
	}
	if entry.NewValues, err = unmarshalValues(newJSON); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func marshalValues(v Values) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: encode values: %w", err)
	}
	return raw, nil
}

func unmarshalValues(raw []byte) (Values, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v Values
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("audit: decode values: %w", err)
	}
	return v, nil
}
