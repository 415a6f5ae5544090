package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultUnit is applied when an item is created without a unit.
const DefaultUnit = "pcs"

// ============================================================================
// INVENTORY ITEM
// ============================================================================

// Item is one stock line: a product held in exactly one warehouse.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	ItemCode    string          `json:"item_code"`
	ProductName string          `json:"product_name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Movement is the result of a ledger mutation. Item reflects the row after it.
type Movement struct {
	Item   Item `json:"item"`
	Before int  `json:"before"`
	After  int  `json:"after"`
}

// PriceChange records an item's price moving from OldPrice to NewPrice.
type PriceChange struct {
	ID          int64           `json:"id"`
	InventoryID uuid.UUID       `json:"inventory_id"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
	ChangedBy   int64           `json:"changed_by"`
	Reason      *string         `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListFilter narrows item listings.
type ListFilter struct {
	Search      string
	Category    string
	WarehouseID *uuid.UUID
	MaxQuantity *int
	Limit       int
	Offset      int
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateItemRequest is the input for Service.CreateItem.
type CreateItemRequest struct {
	ItemCode    string          `json:"item_code" validate:"omitempty,max=64"`
	ProductName string          `json:"product_name" validate:"required,max=255"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required,max=255"`
	Unit        string          `json:"unit" validate:"omitempty,max=50"`
	WarehouseID uuid.UUID       `json:"warehouse_id" validate:"required"`
}

// UpdateItemRequest carries optional field changes. Nil fields are left alone.
// An item's warehouse is fixed once created.
type UpdateItemRequest struct {
	ProductName *string          `json:"product_name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=0"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category" validate:"omitempty,min=1,max=255"`
	Unit        *string          `json:"unit" validate:"omitempty,max=50"`
	PriceReason *string          `json:"price_reason"`
}

// StockRequest is the body for add/remove stock.
type StockRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}
