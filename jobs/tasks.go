package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bosunhq/stockroom/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryImport imports an uploaded CSV file in the background.
	TaskInventoryImport = "inventory:import"
	// TaskLowStockScan reports items at or below the low-stock threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
)

// ImportPayload carries an uploaded file and the actor who uploaded it.
type ImportPayload struct {
	ActorID   int64       `json:"actor_id"`
	ActorRole shared.Role `json:"actor_role"`
	ActorIP   string      `json:"actor_ip,omitempty"`
	Filename  string      `json:"filename"`
	Content   []byte      `json:"content"`
}

// Actor rebuilds the uploader identity.
func (p ImportPayload) Actor() shared.Actor {
	return shared.Actor{ID: p.ActorID, Role: p.ActorRole, IPAddress: p.ActorIP}
}

// NewImportTask constructs an Asynq task for a background import.
func NewImportTask(actor shared.Actor, filename string, content []byte) (*asynq.Task, error) {
	body, err := json.Marshal(ImportPayload{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		ActorIP:   actor.IPAddress,
		Filename:  filename,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryImport, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// LowStockScanPayload configures the low-stock scan. A zero threshold uses
// the job default.
type LowStockScanPayload struct {
	Threshold int `json:"threshold"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(threshold int) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
