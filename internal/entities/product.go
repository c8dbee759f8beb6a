package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant is the sellable unit of a catalog product. Orders reference
// variants by product id plus variant name and copy the price at creation.
type Variant struct {
	ProductID uuid.UUID
	Name      string
	Price     decimal.Decimal
	Stock     int
}
