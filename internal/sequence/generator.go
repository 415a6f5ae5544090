// Package sequence issues date-scoped, human-readable transaction codes of the
// form PREFIX-YYYYMMDD-NNNN.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bosunhq/stockroom/internal/shared"
)

const (
	// PrefixDispatch prefixes dispatch transaction codes.
	PrefixDispatch = "DSP"
	// PrefixItem prefixes generated inventory item codes.
	PrefixItem = "ITM"
	// MaxPerDay is the largest sequence number a prefix can issue on one day.
	MaxPerDay = 9999

	dayLayout = "20060102"
)

// Store atomically increments the counter for (prefix, day) and returns the
// new value. Increments are never rolled back with the caller's unit of work.
type Store interface {
	Increment(ctx context.Context, prefix string, day time.Time) (int64, error)
}

// Generator formats codes from a Store.
type Generator struct {
	store Store
}

// NewGenerator constructs a Generator.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Next reserves the next code for prefix on date's calendar day.
func (g *Generator) Next(ctx context.Context, prefix string, date time.Time) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("sequence: %w: prefix required", shared.ErrInvalidInput)
	}
	day := Day(date)
	value, err := g.store.Increment(ctx, prefix, day)
	if err != nil {
		return "", fmt.Errorf("sequence: increment %s: %w", prefix, err)
	}
	if value > MaxPerDay {
		return "", fmt.Errorf("sequence: %s on %s: %w", prefix, day.Format(dayLayout), shared.ErrSequenceExhausted)
	}
	return Format(prefix, day, value), nil
}

// Format renders a code.
func Format(prefix string, date time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format(dayLayout), n)
}

// Day truncates t to its calendar day in t's own location, returned as a UTC
// midnight so it can be stored as a DATE.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
