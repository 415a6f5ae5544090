package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bosunhq/stockroom/internal/shared"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

var uniqueConstraints = map[string]error{
	"inventories_item_code_key":         shared.ErrDuplicateCode,
	"inventories_product_warehouse_key": shared.ErrDuplicateProduct,
	"dispatches_transaction_code_key":   shared.ErrDuplicateCode,
	"warehouses_name_lower_key":         shared.ErrInvalidInput,
}

// MapError converts pgx/pgconn errors to shared sentinel errors, prefixing
// the result with op. Context errors pass through wrapped but unmapped.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			if target, ok := uniqueConstraints[pgErr.ConstraintName]; ok {
				return fmt.Errorf("%s: %w", op, target)
			}
			return fmt.Errorf("%s: %w: %s", op, shared.ErrInvalidInput, pgErr.Message)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, shared.ErrNotFound, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, shared.ErrInvalidInput, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsForeignKeyViolation reports whether err is a 23503 error.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}
