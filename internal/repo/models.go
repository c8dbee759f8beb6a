package repo

import (
	"time"

	"github.com/techbreeze/order-service/internal/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	OrderUID        uuid.UUID       `db:"order_uid"`
	CustomerUID     uuid.UUID       `db:"customer_uid"`
	RiderUID        uuid.NullUUID   `db:"rider_uid"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	ShippingAddress string          `db:"shipping_address"`
	Status          string          `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

type Item struct {
	OrderUID   uuid.UUID       `db:"order_uid"`
	ProductUID uuid.UUID       `db:"product_uid"`
	Variant    string          `db:"variant"`
	UnitPrice  decimal.Decimal `db:"unit_price"`
	Quantity   int             `db:"quantity"`
}

type User struct {
	UserUID uuid.UUID `db:"user_uid"`
	Email   string    `db:"email"`
	Name    string    `db:"name"`
	Role    string    `db:"role"`
}

type Variant struct {
	ProductUID uuid.UUID       `db:"product_uid"`
	Variant    string          `db:"variant"`
	Price      decimal.Decimal `db:"price"`
	Stock      int             `db:"stock"`
}

func ItemToEntity(i Item) entities.LineItem {
	return entities.LineItem{
		ProductID: i.ProductUID,
		Variant:   i.Variant,
		UnitPrice: i.UnitPrice,
		Quantity:  i.Quantity,
	}
}

func OrderToEntity(o Order, items []Item) entities.Order {
	order := entities.Order{
		ID:              o.OrderUID,
		CustomerID:      o.CustomerUID,
		TotalPrice:      o.TotalPrice,
		ShippingAddress: o.ShippingAddress,
		Status:          entities.Status(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}

	if o.RiderUID.Valid {
		rider := o.RiderUID.UUID
		order.RiderID = &rider
	}

	if len(items) > 0 {
		order.Items = make([]entities.LineItem, 0, len(items))
		for _, it := range items {
			order.Items = append(order.Items, ItemToEntity(it))
		}
	}

	return order
}

func UserToEntity(u User) entities.User {
	return entities.User{
		ID:    u.UserUID,
		Email: u.Email,
		Name:  u.Name,
		Role:  entities.Role(u.Role),
	}
}

func VariantToEntity(v Variant) entities.Variant {
	return entities.Variant{
		ProductID: v.ProductUID,
		Name:      v.Variant,
		Price:     v.Price,
		Stock:     v.Stock,
	}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
