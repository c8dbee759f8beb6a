package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/techbreeze/order-service/internal/entities"
	"github.com/techbreeze/order-service/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var orderColumns = []string{
	"order_uid", "customer_uid", "rider_uid", "total_price",
	"shipping_address", "status", "created_at", "updated_at",
}

var itemColumns = []string{"order_uid", "product_uid", "variant", "unit_price", "quantity"}

type ordersRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewOrdersRepo(db *sqlx.DB) *ordersRepo {
	return &ordersRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ordersRepo) SaveOrder(ctx context.Context, o entities.Order) error {
	query, args := r.qb.Insert("orders").
		Columns(orderColumns...).
		Values(
			o.ID, o.CustomerID, nullUUID(o.RiderID), o.TotalPrice,
			o.ShippingAddress, o.Status.String(), o.CreatedAt, o.UpdatedAt,
		).
		MustSql()

	_, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (r *ordersRepo) SaveItems(ctx context.Context, orderUID uuid.UUID, items []entities.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	q := r.qb.Insert("order_items").Columns(itemColumns...)
	for _, it := range items {
		q = q.Values(orderUID, it.ProductID, it.Variant, it.UnitPrice, it.Quantity)
	}

	query, args := q.MustSql()
	_, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save order items: %w", err)
	}
	return nil
}

func (r *ordersRepo) GetOrderByID(ctx context.Context, orderUID uuid.UUID) (entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"order_uid": orderUID}).
		MustSql()

	var order Order
	err := r.getContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.itemsByOrder(ctx, orderUID)
	if err != nil {
		return entities.Order{}, err
	}

	return OrderToEntity(order, items), nil
}

// UpdateStatus is the only write path for an order's mutable fields. It is a
// conditional update: the row changes only while its status still equals from,
// so concurrent conflicting transitions cannot both win. Returns false when
// the condition did not match any row.
//
// Transitioning into cancelled clears the rider linkage so that a rider is
// bound exactly to orders in shipped or delivered.
func (r *ordersRepo) UpdateStatus(ctx context.Context, orderUID uuid.UUID, from, to entities.Status, riderUID *uuid.UUID) (time.Time, bool, error) {
	q := r.qb.Update("orders").
		Set("status", to.String()).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"order_uid": orderUID, "status": from.String()})

	if riderUID != nil {
		q = q.Set("rider_uid", *riderUID)
	}
	if to == entities.StatusCancelled {
		q = q.Set("rider_uid", nil)
	}

	query, args := q.Suffix("RETURNING updated_at").MustSql()

	var updatedAt time.Time
	err := r.getContext(ctx, &updatedAt, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to update order status: %w", err)
	}
	return updatedAt, true, nil
}

func (r *ordersRepo) ListByCustomer(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error) {
	return r.list(ctx, sq.Eq{"customer_uid": customerUID}, 0, 0)
}

func (r *ordersRepo) ListByRider(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error) {
	return r.list(ctx, sq.Eq{"rider_uid": riderUID}, 0, 0)
}

// List returns a page of orders plus the total match count for pagination.
func (r *ordersRepo) List(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error) {
	var where any
	if filter.Status != nil {
		where = sq.Eq{"status": filter.Status.String()}
	}

	countQ := r.qb.Select("count(*)").From("orders")
	if where != nil {
		countQ = countQ.Where(where)
	}
	query, args := countQ.MustSql()

	var total int64
	if err := r.getContext(ctx, &total, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := r.list(ctx, where, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// LatestOrders feeds the cache warm-up with the most recently touched orders.
func (r *ordersRepo) LatestOrders(ctx context.Context, count int) ([]entities.Order, error) {
	return r.list(ctx, nil, uint64(count), 0)
}

func (r *ordersRepo) list(ctx context.Context, where any, limit, offset uint64) ([]entities.Order, error) {
	q := r.qb.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC")
	if where != nil {
		q = q.Where(where)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	query, args := q.MustSql()

	var orders []Order
	if err := r.selectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}

	if len(orders) == 0 {
		return []entities.Order{}, nil
	}

	uids := make([]uuid.UUID, len(orders))
	for i, order := range orders {
		uids[i] = order.OrderUID
	}

	query, args = r.qb.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_uid": uids}).
		MustSql()

	var items []Item
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}
	itemsMap := make(map[uuid.UUID][]Item, len(uids))
	for _, item := range items {
		itemsMap[item.OrderUID] = append(itemsMap[item.OrderUID], item)
	}

	result := make([]entities.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, OrderToEntity(order, itemsMap[order.OrderUID]))
	}
	return result, nil
}

func (r *ordersRepo) itemsByOrder(ctx context.Context, orderUID uuid.UUID) ([]Item, error) {
	query, args := r.qb.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_uid": orderUID}).
		MustSql()

	var items []Item
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}
	return items, nil
}

func (r *ordersRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *ordersRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *ordersRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
