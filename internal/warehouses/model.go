package warehouses

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderAddress is stored for warehouses created implicitly by an import.
const PlaceholderAddress = "To be updated"

// Warehouse represents a stock location.
type Warehouse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Phone      string    `json:"phone"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListFilter narrows warehouse listings.
type ListFilter struct {
	Search     string
	ActiveOnly bool
}

// CreateRequest is the input for Service.Create.
type CreateRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Address    string `json:"address" validate:"max=1000"`
	City       string `json:"city" validate:"max=255"`
	State      string `json:"state" validate:"max=255"`
	PostalCode string `json:"postal_code" validate:"max=32"`
	Phone      string `json:"phone" validate:"max=64"`
}
