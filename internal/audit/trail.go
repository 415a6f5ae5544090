package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/bosunhq/stockroom/internal/shared"
)

// Store menyimpan entry secara append-only.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id int64) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)
}

// Trail menulis entry ke Store. Append dipanggil di dalam unit of work
// pemanggil sehingga entry ikut rollback bersama mutasinya.
type Trail struct {
	store Store
	clock shared.Clock
}

// NewTrail membuat Trail baru.
func NewTrail(store Store, clock shared.Clock) *Trail {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Trail{store: store, clock: clock}
}

// Append memvalidasi record terhadap skema action lalu menyimpannya.
func (t *Trail) Append(ctx context.Context, actor shared.Actor, rec Record) (Entry, error) {
	if t == nil || t.store == nil {
		return Entry{}, fmt.Errorf("audit: trail not configured")
	}
	if err := validateRecord(rec); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ActorID:       actor.ID,
		Action:        rec.Action,
		ModelType:     rec.ModelType,
		ModelID:       rec.ModelID,
		Description:   rec.Description,
		OldValues:     rec.Old,
		NewValues:     rec.New,
		SchemaVersion: SchemaVersion,
		IPAddress:     actor.IP(),
		CreatedAt:     t.clock.Now(),
	}
	if err := t.store.Insert(ctx, &entry); err != nil {
		return Entry{}, fmt.Errorf("audit: append %s: %w", rec.Action, err)
	}
	return entry, nil
}

func validateRecord(rec Record) error {
	sc, ok := actionSchemas[rec.Action]
	if !ok {
		return fmt.Errorf("audit: %w: unknown action %q", shared.ErrInvalidInput, rec.Action)
	}
	if strings.TrimSpace(rec.ModelType) == "" {
		return fmt.Errorf("audit: %w: model type required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(rec.Description) == "" {
		return fmt.Errorf("audit: %w: description required", shared.ErrInvalidInput)
	}
	if missing := rec.Old.missing(sc.old); len(missing) > 0 {
		return fmt.Errorf("audit: %w: %s old values missing %v", shared.ErrInvalidInput, rec.Action, missing)
	}
	if missing := rec.New.missing(sc.new); len(missing) > 0 {
		return fmt.Errorf("audit: %w: %s new values missing %v", shared.ErrInvalidInput, rec.Action, missing)
	}
	return nil
}
