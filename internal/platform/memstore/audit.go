package memstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/shared"
)

type auditRepo struct{ s *Store }

// Insert stores a copy of entry with its values decoded the way JSONB would
// return them.
func (r auditRepo) Insert(ctx context.Context, entry *audit.Entry) error {
	oldValues, err := roundTrip(entry.OldValues)
	if err != nil {
		return fmt.Errorf("memstore: audit old values: %w", err)
	}
	newValues, err := roundTrip(entry.NewValues)
	if err != nil {
		return fmt.Errorf("memstore: audit new values: %w", err)
	}
	return r.s.do(ctx, func(st *state) error {
		r.s.seqMu.Lock()
		r.s.nextEntryID++
		entry.ID = r.s.nextEntryID
		r.s.seqMu.Unlock()
		stored := *entry
		stored.OldValues = oldValues
		stored.NewValues = newValues
		st.entries = append(st.entries, stored)
		return nil
	})
}

func (r auditRepo) Get(ctx context.Context, id int64) (audit.Entry, error) {
	var entry audit.Entry
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.ID == id {
				entry = e
				return nil
			}
		}
		return fmt.Errorf("memstore: activity log %d: %w", id, shared.ErrNotFound)
	})
	return entry, err
}

// List returns matches newest first. Entries are appended in id order, so
// walking backwards matches ORDER BY created_at DESC, id DESC for a
// monotonic clock.
func (r auditRepo) List(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, int, error) {
	var matched []audit.Entry
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.entries) - 1; i >= 0; i-- {
			e := st.entries[i]
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.ModelType != "" && e.ModelType != filter.ModelType {
				continue
			}
			if filter.ModelID != nil && (e.ModelID == nil || *e.ModelID != *filter.ModelID) {
				continue
			}
			if filter.ActorID != nil && e.ActorID != *filter.ActorID {
				continue
			}
			if filter.From != nil && e.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !e.CreatedAt.Before(*filter.To) {
				continue
			}
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, len(matched))
	return page(matched, p.PerPage, p.Offset()), len(matched), nil
}

func roundTrip(values audit.Values) (audit.Values, error) {
	if values == nil {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var out audit.Values
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
