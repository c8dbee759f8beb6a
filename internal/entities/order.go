package entities

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a purchased product variant. Line items are immutable after the
// order is created; the unit price is the catalog price at creation time.
type LineItem struct {
	ProductID uuid.UUID
	Variant   string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Order is the aggregate managed by the lifecycle service. Status and RiderID
// are the only fields that change after creation, and only via Transition.
type Order struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	RiderID         *uuid.UUID
	Items           []LineItem
	TotalPrice      decimal.Decimal
	ShippingAddress string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalOf sums unit price times quantity over items. Tax and shipping are a
// presentation concern and are never part of the stored total.
func TotalOf(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// OrderFilter narrows admin order listings. A nil Status matches every
// status; zero Limit means no paging.
type OrderFilter struct {
	Status *Status
	Limit  uint64
	Offset uint64
}

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("product variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrRiderRequired     = errors.New("rider is required to ship an order")
	ErrNotARider         = errors.New("user is not a rider")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError carries both statuses so the client can resync its
// view of the order.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (o *Order) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Order) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	return dec.Decode(o)
}

func init() {
	gob.Register(Order{})
	gob.Register(LineItem{})
}
