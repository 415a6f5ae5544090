package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates a referenced item, dispatch, warehouse or log entry is absent.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a decrement larger than the current balance.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity indicates a non-positive movement amount.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrUnauthorized indicates the actor's role does not permit the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDuplicateCode indicates an item or transaction code already in use.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrDuplicateProduct indicates the product already exists in the warehouse.
	ErrDuplicateProduct = errors.New("duplicate product")
	// ErrSequenceExhausted indicates the daily code capacity for a prefix is used up.
	ErrSequenceExhausted = errors.New("sequence exhausted")
	// ErrIllegalTransition indicates a dispatch status change the lifecycle forbids.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientStockError carries the balance observed under lock.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %d, requested %d", e.ItemID, e.Available, e.Requested)
}

// Is lets errors.Is match the ErrInsufficientStock sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
