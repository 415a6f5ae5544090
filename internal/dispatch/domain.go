package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDestination is used when a dispatch is created without one.
const DefaultDestination = "Bosun Hardware"

// ============================================================================
// DISPATCH STATUS
// ============================================================================

// Status is the lifecycle state of a dispatch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ============================================================================
// DISPATCH
// ============================================================================

// Dispatch is an outbound shipment that debited one inventory line.
// Only Status, Destination and Notes change after creation.
type Dispatch struct {
	ID              uuid.UUID  `json:"id"`
	TransactionCode string     `json:"transaction_code"`
	InventoryID     uuid.UUID  `json:"inventory_id"`
	WarehouseID     uuid.UUID  `json:"warehouse_id"`
	DispatcherID    int64      `json:"dispatcher_id"`
	Quantity        int        `json:"quantity"`
	Destination     string     `json:"destination"`
	Notes           *string    `json:"notes,omitempty"`
	Status          Status     `json:"status"`
	DispatchedAt    time.Time  `json:"dispatched_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// View is a dispatch joined with the names a reader needs.
type View struct {
	Dispatch
	ProductName   string `json:"product_name"`
	ItemCode      string `json:"item_code"`
	WarehouseName string `json:"warehouse_name"`
}

// ListFilter narrows dispatch listings.
type ListFilter struct {
	WarehouseID  *uuid.UUID
	InventoryID  *uuid.UUID
	DispatcherID *int64
	Status       *Status
	Limit        int
	Offset       int
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// MaxDestinationLength matches the destination column width.
const MaxDestinationLength = 255

// CreateRequest is the input for Service.CreateDispatch. A zero WarehouseID
// means the item's own warehouse. The service validates it and reports
// failures as ErrInvalidInput or ErrInvalidQuantity.
type CreateRequest struct {
	InventoryID uuid.UUID `json:"inventory_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int       `json:"quantity"`
	Destination *string   `json:"destination"`
	Notes       *string   `json:"notes"`
}

// UpdateRequest carries the mutable fields. Nil fields are left alone.
// Status values are checked by the lifecycle.
type UpdateRequest struct {
	Status      *Status `json:"status"`
	Destination *string `json:"destination"`
	Notes       *string `json:"notes"`
}
