package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/techbreeze/order-service/internal/entities"
	"github.com/techbreeze/order-service/pkg/trm"
	"github.com/techbreeze/order-service/pkg/utils"

	"github.com/google/uuid"
)

type OrderRepo interface {
	SaveOrder(ctx context.Context, o entities.Order) error
	SaveItems(ctx context.Context, orderUID uuid.UUID, items []entities.LineItem) error
	GetOrderByID(ctx context.Context, orderUID uuid.UUID) (entities.Order, error)

	// UpdateStatus must be a conditional write: it only applies when the
	// stored status still equals from, and reports whether it did.
	UpdateStatus(ctx context.Context, orderUID uuid.UUID, from, to entities.Status, riderUID *uuid.UUID) (time.Time, bool, error)

	ListByCustomer(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error)
	ListByRider(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error)
	List(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error)
	LatestOrders(ctx context.Context, count int) ([]entities.Order, error)
}

type UserRepo interface {
	GetByID(ctx context.Context, userUID uuid.UUID) (entities.User, error)
}

type ProductRepo interface {
	GetVariantForUpdate(ctx context.Context, productUID uuid.UUID, variant string) (entities.Variant, error)
	DecrementStock(ctx context.Context, productUID uuid.UUID, variant string, quantity int) error
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type EventPublisher interface {
	OrderCreated(ctx context.Context, order entities.Order) error
	StatusChanged(ctx context.Context, order entities.Order) error
}

type CreateOrderItem struct {
	ProductID uuid.UUID
	Variant   string
	Quantity  int
}

type CreateOrderInput struct {
	Items           []CreateOrderItem
	ShippingAddress string
}

type orderService struct {
	logger    *slog.Logger
	txManager trm.Manager
	orders    OrderRepo
	users     UserRepo
	products  ProductRepo
	cache     Cache
	events    EventPublisher
}

func NewOrderService(
	logger *slog.Logger,
	txManager trm.Manager,
	orders OrderRepo,
	users UserRepo,
	products ProductRepo,
	cache Cache,
	events EventPublisher,
) *orderService {
	return &orderService{
		logger:    logger.With(slog.String("service", "order")),
		txManager: txManager,
		orders:    orders,
		users:     users,
		products:  products,
		cache:     cache,
		events:    events,
	}
}

var readRetry = utils.RetryConfig{
	InitialDelay: 100 * time.Millisecond,
	MaxAttempts:  5,
	Multiplier:   2,
}

// CreateOrder validates the requested items against the catalog, decrements
// stock and persists the order, all in one transaction. New orders always
// start as pending; the stored total is the sum of line item prices with no
// tax or shipping added.
func (s *orderService) CreateOrder(ctx context.Context, customerUID uuid.UUID, input CreateOrderInput) (entities.Order, error) {
	if len(input.Items) == 0 {
		return entities.Order{}, entities.ErrEmptyOrder
	}

	now := time.Now().UTC()
	order := entities.Order{
		ID:              uuid.New(),
		CustomerID:      customerUID,
		ShippingAddress: input.ShippingAddress,
		Status:          entities.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		for _, item := range input.Items {
			variant, err := s.products.GetVariantForUpdate(ctx, item.ProductID, item.Variant)
			if err != nil {
				return err
			}
			if variant.Stock < item.Quantity {
				return fmt.Errorf("%w: product %s variant %s", entities.ErrInsufficientStock, item.ProductID, item.Variant)
			}
			if err := s.products.DecrementStock(ctx, item.ProductID, item.Variant, item.Quantity); err != nil {
				return err
			}

			order.Items = append(order.Items, entities.LineItem{
				ProductID: item.ProductID,
				Variant:   item.Variant,
				UnitPrice: variant.Price,
				Quantity:  item.Quantity,
			})
		}
		order.TotalPrice = entities.TotalOf(order.Items)

		if err := s.orders.SaveOrder(ctx, order); err != nil {
			return err
		}
		return s.orders.SaveItems(ctx, order.ID, order.Items)
	})
	if err != nil {
		return entities.Order{}, err
	}

	s.cacheOrder(order)
	if err := s.events.OrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order created event",
			slog.String("order_uid", order.ID.String()), slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_uid", order.ID.String()),
		slog.String("customer_uid", customerUID.String()))
	return order, nil
}

// GetOrder loads an order and enforces read access: admins see any order,
// customers only their own, riders only orders assigned to them.
func (s *orderService) GetOrder(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error) {
	if data, ok := s.cache.Get(orderUID.String()); ok {
		var order entities.Order
		if err := order.Unmarshal(data); err == nil {
			return order, s.authorizeRead(caller, order)
		}
		s.logger.Warn("failed to unmarshal cached order", slog.String("order_uid", orderUID.String()))
	}

	var order entities.Order
	fn := func() error {
		var err error
		order, err = s.orders.GetOrderByID(ctx, orderUID)
		return err
	}
	if err := utils.Retry(ctx, readRetry, fn, entities.ErrOrderNotFound); err != nil {
		return entities.Order{}, err
	}

	s.cacheOrder(order)
	return order, s.authorizeRead(caller, order)
}

func (s *orderService) ListCustomerOrders(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error) {
	var orders []entities.Order
	fn := func() error {
		var err error
		orders, err = s.orders.ListByCustomer(ctx, customerUID)
		return err
	}
	if err := utils.Retry(ctx, readRetry, fn); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *orderService) ListRiderOrders(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error) {
	var orders []entities.Order
	fn := func() error {
		var err error
		orders, err = s.orders.ListByRider(ctx, riderUID)
		return err
	}
	if err := utils.Retry(ctx, readRetry, fn); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error) {
	var (
		orders []entities.Order
		total  int64
	)
	fn := func() error {
		var err error
		orders, total, err = s.orders.List(ctx, filter)
		return err
	}
	if err := utils.Retry(ctx, readRetry, fn); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Transition applies one edge of the order state machine on behalf of caller.
//
// Validation order: the order must exist, the edge must be legal, the caller
// role must be allowed on that edge, and ownership rules must hold (customers
// mutate only their own orders, riders only deliver orders assigned to them).
// Shipping requires a rider, who must resolve to a user with the rider role.
//
// The write is a compare-and-set on the previous status. Losing a concurrent
// transition surfaces as an invalid transition from the winner's status, never
// as a silent overwrite. Transitions are not retried.
func (s *orderService) Transition(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderUID)
	if err != nil {
		return entities.Order{}, err
	}

	if caller.Role == entities.RoleCustomer && order.CustomerID != caller.UserID {
		return entities.Order{}, entities.ErrForbidden
	}

	if !order.Status.CanTransitionTo(target) {
		return entities.Order{}, &entities.InvalidTransitionError{From: order.Status, To: target}
	}
	if !order.Status.RoleAllowed(target, caller.Role) {
		return entities.Order{}, entities.ErrForbidden
	}

	// Only the assigned rider may deliver; admins can always step in.
	if caller.Role == entities.RoleRider {
		if order.RiderID == nil || *order.RiderID != caller.UserID {
			return entities.Order{}, entities.ErrForbidden
		}
	}

	var assignRider *uuid.UUID
	if target == entities.StatusShipped {
		assignRider, err = s.resolveRider(ctx, riderUID)
		if err != nil {
			return entities.Order{}, err
		}
	}

	updatedAt, updated, err := s.orders.UpdateStatus(ctx, orderUID, order.Status, target, assignRider)
	if err != nil {
		return entities.Order{}, err
	}
	if !updated {
		// Lost a race: report the transition against whatever won.
		current, err := s.orders.GetOrderByID(ctx, orderUID)
		if err != nil {
			return entities.Order{}, err
		}
		return entities.Order{}, &entities.InvalidTransitionError{From: current.Status, To: target}
	}

	from := order.Status
	order.Status = target
	order.UpdatedAt = updatedAt
	if assignRider != nil {
		order.RiderID = assignRider
	}
	if target == entities.StatusCancelled {
		order.RiderID = nil
	}

	s.cacheOrder(order)
	if err := s.events.StatusChanged(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish status change event",
			slog.String("order_uid", order.ID.String()), slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_uid", order.ID.String()),
		slog.String("from", from.String()),
		slog.String("to", target.String()),
		slog.String("caller_role", caller.Role.String()))
	return order, nil
}

// WarmUpCache preloads the most recent orders. Used as an application starter.
func (s *orderService) WarmUpCache(ctx context.Context, count int) error {
	orders, err := s.orders.LatestOrders(ctx, count)
	if err != nil {
		return fmt.Errorf("failed to warm up cache: %w", err)
	}
	for _, order := range orders {
		s.cacheOrder(order)
	}
	s.logger.Info("cache warmed up", slog.Int("orders", len(orders)))
	return nil
}

func (s *orderService) resolveRider(ctx context.Context, riderUID *uuid.UUID) (*uuid.UUID, error) {
	if riderUID == nil {
		return nil, entities.ErrRiderRequired
	}
	rider, err := s.users.GetByID(ctx, *riderUID)
	if errors.Is(err, entities.ErrUserNotFound) {
		return nil, entities.ErrNotARider
	}
	if err != nil {
		return nil, err
	}
	if rider.Role != entities.RoleRider {
		return nil, entities.ErrNotARider
	}
	return riderUID, nil
}

func (s *orderService) authorizeRead(caller entities.Principal, order entities.Order) error {
	switch caller.Role {
	case entities.RoleAdmin:
		return nil
	case entities.RoleCustomer:
		if order.CustomerID == caller.UserID {
			return nil
		}
	case entities.RoleRider:
		if order.RiderID != nil && *order.RiderID == caller.UserID {
			return nil
		}
	}
	return entities.ErrForbidden
}

func (s *orderService) cacheOrder(order entities.Order) {
	data, err := order.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal order for cache",
			slog.String("order_uid", order.ID.String()), slog.Any("error", err))
		return
	}
	s.cache.Set(order.ID.String(), data)
}
