package dispatch

import (
	"fmt"

	"github.com/bosunhq/stockroom/internal/shared"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusInTransit, StatusDelivered, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle applies status changes to a dispatch.
type Lifecycle struct {
	clock shared.Clock
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(clock shared.Clock) Lifecycle {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return Lifecycle{clock: clock}
}

// Transition moves d to next. It returns false without touching d when next
// equals the current status. Entering delivered stamps DeliveredAt.
func (l Lifecycle) Transition(d *Dispatch, next Status) (bool, error) {
	if !next.IsValid() {
		return false, fmt.Errorf("dispatch: %w: unknown status %q", shared.ErrInvalidInput, next)
	}
	if d.Status == next {
		return false, nil
	}
	if !CanTransition(d.Status, next) {
		return false, fmt.Errorf("dispatch: %w: %s -> %s", shared.ErrIllegalTransition, d.Status, next)
	}
	now := l.clock.Now()
	d.Status = next
	d.UpdatedAt = now
	if next == StatusDelivered {
		d.DeliveredAt = &now
	}
	return true, nil
}
