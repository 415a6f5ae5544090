package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/shared"
)

// LedgerStore is the persistence the ledger needs. GetForUpdate must hold an
// exclusive lock on the row until the enclosing unit of work ends.
type LedgerStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Item, error)
	SetQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error
}

// Ledger is the only writer of Item.Quantity. Every operation re-reads the
// quantity after locking the row, so concurrent movements on one item are
// applied one at a time and the balance never goes negative.
type Ledger struct {
	tx    shared.Transactor
	store LedgerStore
	clock shared.Clock
}

// NewLedger constructs a Ledger.
func NewLedger(tx shared.Transactor, store LedgerStore, clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Ledger{tx: tx, store: store, clock: clock}
}

// Check locks the item and verifies amount could be decremented, without
// writing. Inside a caller's unit of work the lock is held until it ends.
func (l *Ledger) Check(ctx context.Context, itemID uuid.UUID, amount int) (Item, error) {
	if amount <= 0 {
		return Item{}, fmt.Errorf("inventory: check: %w", shared.ErrInvalidQuantity)
	}
	var item Item
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := l.store.GetForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if current.Quantity < amount {
			return &shared.InsufficientStockError{ItemID: itemID, Available: current.Quantity, Requested: amount}
		}
		item = current
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: check: %w", err)
	}
	return item, nil
}

// Decrement removes amount from the item's quantity.
func (l *Ledger) Decrement(ctx context.Context, itemID uuid.UUID, amount int) (Movement, error) {
	if amount <= 0 {
		return Movement{}, fmt.Errorf("inventory: decrement: %w", shared.ErrInvalidQuantity)
	}
	mv, err := l.apply(ctx, itemID, -amount)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: decrement: %w", err)
	}
	return mv, nil
}

// Increment adds amount to the item's quantity.
func (l *Ledger) Increment(ctx context.Context, itemID uuid.UUID, amount int) (Movement, error) {
	if amount <= 0 {
		return Movement{}, fmt.Errorf("inventory: increment: %w", shared.ErrInvalidQuantity)
	}
	mv, err := l.apply(ctx, itemID, amount)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: increment: %w", err)
	}
	return mv, nil
}

func (l *Ledger) apply(ctx context.Context, itemID uuid.UUID, delta int) (Movement, error) {
	var mv Movement
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		item, err := l.store.GetForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		after := item.Quantity + delta
		if after < 0 {
			return &shared.InsufficientStockError{ItemID: itemID, Available: item.Quantity, Requested: -delta}
		}
		if after > math.MaxInt32 {
			return fmt.Errorf("%w: quantity would exceed %d", shared.ErrInvalidQuantity, math.MaxInt32)
		}
		now := l.clock.Now()
		if err := l.store.SetQuantity(ctx, itemID, after, now); err != nil {
			return err
		}
		mv = Movement{Before: item.Quantity, After: after}
		item.Quantity = after
		item.UpdatedAt = now
		mv.Item = item
		return nil
	})
	return mv, err
}
