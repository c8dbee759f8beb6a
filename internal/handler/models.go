package handler

import (
	"time"

	"github.com/techbreeze/order-service/internal/entities"

	"github.com/shopspring/decimal"
)

// LineItemRequest is one cart position in a checkout request. Prices are
// taken from the catalog, never from the client.
type LineItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Variant   string `json:"variant" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	LineItems       []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	ShippingAddress string            `json:"shipping_address" validate:"required"`
}

type UpdateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	RiderID string `json:"rider_id,omitempty" validate:"omitempty,uuid"`
}

type UpdateDeliveryRequest struct {
	Status string `json:"status" validate:"required"`
}

// LineItem is a purchased product variant
type LineItem struct {
	ProductID string          `json:"product_id"`
	Variant   string          `json:"variant"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Order represents an order with its lifecycle state
type Order struct {
	OrderUID        string          `json:"order_uid"`
	CustomerUID     string          `json:"customer_uid"`
	RiderUID        string          `json:"rider_uid,omitempty"`
	LineItems       []LineItem      `json:"line_items"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	ShippingAddress string          `json:"shipping_address"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderList is a paginated admin listing
type OrderList struct {
	Orders      []Order `json:"orders"`
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	TotalOrders int64   `json:"total_orders"`
}

func LineItemEntityToJSON(i entities.LineItem) LineItem {
	return LineItem{
		ProductID: i.ProductID.String(),
		Variant:   i.Variant,
		UnitPrice: i.UnitPrice,
		Quantity:  i.Quantity,
	}
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineItemEntityToJSON(it))
	}

	order := Order{
		OrderUID:        o.ID.String(),
		CustomerUID:     o.CustomerID.String(),
		LineItems:       items,
		TotalPrice:      o.TotalPrice,
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status.String(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.RiderID != nil {
		order.RiderUID = o.RiderID.String()
	}
	return order
}

func OrdersEntityToJSON(orders []entities.Order) []Order {
	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, OrderEntityToJSON(o))
	}
	return result
}
