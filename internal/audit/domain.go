package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action adalah tag jenis aktivitas yang dicatat.
type Action string

const (
	ActionDispatched    Action = "dispatched"
	ActionStatusChanged Action = "status_changed"
	ActionStockAdded    Action = "stock_added"
	ActionStockRemoved  Action = "stock_removed"
	ActionBulkCreated   Action = "bulk_created"
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionDeleted       Action = "deleted"
)

// IsValid memeriksa apakah action dikenal.
func (a Action) IsValid() bool {
	_, ok := actionSchemas[a]
	return ok
}

// Model types recorded in model_type.
const (
	ModelInventory = "Inventory"
	ModelDispatch  = "Dispatch"
	ModelWarehouse = "Warehouse"
)

// SchemaVersion adalah versi skema old/new values yang ditulis saat ini.
const SchemaVersion = 1

// schema mendaftar key wajib pada old/new values per action.
type schema struct {
	old []string
	new []string
}

var actionSchemas = map[Action]schema{
	ActionDispatched:    {old: []string{"quantity"}, new: []string{"transaction_code", "quantity", "status"}},
	ActionStatusChanged: {old: []string{"status"}, new: []string{"status"}},
	ActionStockAdded:    {old: []string{"quantity"}, new: []string{"quantity"}},
	ActionStockRemoved:  {old: []string{"quantity"}, new: []string{"quantity"}},
	ActionBulkCreated:   {new: []string{"count", "items"}},
	ActionCreated:       {new: []string{"id"}},
	ActionUpdated:       {},
	ActionDeleted:       {old: []string{"id"}},
}

// Values adalah snapshot key-value untuk old_values/new_values.
type Values map[string]any

// QuantityValues membuat snapshot {quantity: q}.
func QuantityValues(q int) Values {
	return Values{"quantity": q}
}

// StatusValues membuat snapshot {status: s}.
func StatusValues(status string) Values {
	return Values{"status": status}
}

// BulkValues membuat snapshot {count, items} untuk impor massal.
func BulkValues(codes []string) Values {
	items := make([]string, len(codes))
	copy(items, codes)
	return Values{"count": len(items), "items": items}
}

// Snapshot mengubah struct menjadi Values melalui representasi JSON-nya.
func Snapshot(v any) (Values, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: snapshot: %w", err)
	}
	var out Values
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("audit: snapshot: %w", err)
	}
	return out, nil
}

// Int membaca nilai numerik, baik yang ditulis langsung maupun hasil decode JSON.
func (v Values) Int(key string) (int, bool) {
	switch n := v[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// String membaca nilai string.
func (v Values) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

func (v Values) missing(keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := v[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Entry adalah satu baris activity log. Tidak pernah diubah setelah ditulis.
type Entry struct {
	ID            int64      `json:"id"`
	ActorID       int64      `json:"user_id"`
	Action        Action     `json:"action"`
	ModelType     string     `json:"model_type"`
	ModelID       *uuid.UUID `json:"model_id,omitempty"`
	Description   string     `json:"description"`
	OldValues     Values     `json:"old_values,omitempty"`
	NewValues     Values     `json:"new_values,omitempty"`
	SchemaVersion int        `json:"schema_version"`
	IPAddress     *string    `json:"ip_address,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Record adalah input Trail.Append.
type Record struct {
	Action      Action
	ModelType   string
	ModelID     *uuid.UUID
	Description string
	Old         Values
	New         Values
}

// ListFilter menyaring activity log.
type ListFilter struct {
	Action    Action
	ModelType string
	ModelID   *uuid.UUID
	ActorID   *int64
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}
