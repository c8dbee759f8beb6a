package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/techbreeze/order-service/internal/entities"
	mw "github.com/techbreeze/order-service/internal/middleware"
	"github.com/techbreeze/order-service/internal/service"
	"github.com/techbreeze/order-service/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type OrderService interface {
	CreateOrder(ctx context.Context, customerUID uuid.UUID, input service.CreateOrderInput) (entities.Order, error)
	GetOrder(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error)
	ListCustomerOrders(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error)
	ListRiderOrders(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error)
	ListOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error)
	Transition(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error)
}

type HTTPHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	auth     func(http.Handler) http.Handler
	svc      OrderService
}

func NewHTTPHandler(logger *slog.Logger, auth func(http.Handler) http.Handler, svc OrderService) *HTTPHandler {
	return &HTTPHandler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		auth:     auth,
		svc:      svc,
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Route("/orders", func(r chi.Router) {
			r.With(mw.RequireRole(entities.RoleCustomer)).Post("/", h.CreateOrder)
			r.With(mw.RequireRole(entities.RoleCustomer)).Get("/my-orders", h.MyOrders)
			r.With(mw.RequireRole(entities.RoleAdmin)).Get("/", h.ListOrders)

			r.Get("/{order_uid}", h.GetOrder)
			// Any authenticated caller may request a transition; the
			// engine decides which edges their role is allowed.
			r.Patch("/{order_uid}/status", h.UpdateStatus)
			r.With(mw.RequireRole(entities.RoleRider)).Patch("/{order_uid}/delivery", h.UpdateDelivery)
		})

		r.With(mw.RequireRole(entities.RoleRider)).Get("/rider/orders", h.RiderOrders)
	})
}

// CreateOrder places a new order for the calling customer.
// @Summary      Place an order
// @Tags         orders
// @Accept       json
// @Param        body  body      CreateOrderRequest  true  "Order contents"
// @Success      201   {object}  Order
// @Failure      400   {object}  utils.ValidationErrorResponse
// @Router       /orders [post]
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	var req CreateOrderRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	input := service.CreateOrderInput{ShippingAddress: req.ShippingAddress}
	for _, item := range req.LineItems {
		productUID, err := uuid.Parse(item.ProductID)
		if err != nil {
			utils.WriteError(w, "invalid product id", http.StatusBadRequest)
			return
		}
		input.Items = append(input.Items, service.CreateOrderItem{
			ProductID: productUID,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.svc.CreateOrder(ctx, caller.UserID, input)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	ordersCreated.Inc()
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusCreated)
}

// GetOrder returns a single order.
// @Summary      Get order by UID
// @Tags         orders
// @Param        order_uid  path      string  true  "Order UID"
// @Success      200  {object}  Order
// @Failure      403  {object}  utils.ErrorResponse
// @Failure      404  {object}  utils.ErrorResponse
// @Router       /orders/{order_uid} [get]
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	orderUID, err := uuid.Parse(chi.URLParam(r, "order_uid"))
	if err != nil {
		utils.WriteError(w, "order not found", http.StatusNotFound)
		return
	}

	order, err := h.svc.GetOrder(ctx, caller, orderUID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// MyOrders lists the calling customer's orders, newest first.
// @Summary      List own orders
// @Tags         orders
// @Success      200  {array}  Order
// @Router       /orders/my-orders [get]
func (h *HTTPHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	orders, err := h.svc.ListCustomerOrders(ctx, caller.UserID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, OrdersEntityToJSON(orders), http.StatusOK)
}

// ListOrders lists all orders with optional status filter and paging.
// @Summary      List orders (admin)
// @Tags         orders
// @Param        status  query     string  false  "Status filter"
// @Param        page    query     int     false  "Page, starting at 1"
// @Param        limit   query     int     false  "Page size"
// @Success      200  {object}  OrderList
// @Failure      400  {object}  utils.ErrorResponse
// @Router       /orders [get]
func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := entities.OrderFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := entities.ToStatus(raw)
		if err != nil {
			utils.WriteError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if page < 1 || limit < 1 {
		utils.WriteError(w, "page and limit must be positive", http.StatusBadRequest)
		return
	}
	filter.Limit = uint64(limit)
	filter.Offset = uint64(page-1) * uint64(limit)

	orders, total, err := h.svc.ListOrders(ctx, filter)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	utils.WriteJSON(w, OrderList{
		Orders:      OrdersEntityToJSON(orders),
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalOrders: total,
	}, http.StatusOK)
}

// RiderOrders lists orders assigned to the calling rider.
// @Summary      List assigned orders (rider)
// @Tags         rider
// @Success      200  {array}  Order
// @Router       /rider/orders [get]
func (h *HTTPHandler) RiderOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	orders, err := h.svc.ListRiderOrders(ctx, caller.UserID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, OrdersEntityToJSON(orders), http.StatusOK)
}

// UpdateStatus requests a status transition on an order.
// @Summary      Transition order status
// @Tags         orders
// @Accept       json
// @Param        order_uid  path  string               true  "Order UID"
// @Param        body       body  UpdateStatusRequest  true  "Target status"
// @Success      200  {object}  Order
// @Failure      400  {object}  utils.ErrorResponse "Invalid transition"
// @Failure      403  {object}  utils.ErrorResponse
// @Failure      404  {object}  utils.ErrorResponse
// @Router       /orders/{order_uid}/status [patch]
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	orderUID, err := uuid.Parse(chi.URLParam(r, "order_uid"))
	if err != nil {
		utils.WriteError(w, "order not found", http.StatusNotFound)
		return
	}

	var req UpdateStatusRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	target, err := entities.ToStatus(req.Status)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var riderUID *uuid.UUID
	if req.RiderID != "" {
		id, err := uuid.Parse(req.RiderID)
		if err != nil {
			utils.WriteError(w, "invalid rider id", http.StatusBadRequest)
			return
		}
		riderUID = &id
	}

	order, err := h.svc.Transition(ctx, caller, orderUID, target, riderUID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	transitionsApplied.WithLabelValues(target.String()).Inc()
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// UpdateDelivery lets the assigned rider mark a shipped order delivered.
// @Summary      Mark order delivered (rider)
// @Tags         rider
// @Accept       json
// @Param        order_uid  path  string                 true  "Order UID"
// @Param        body       body  UpdateDeliveryRequest  true  "Target status, only delivered"
// @Success      200  {object}  Order
// @Failure      400  {object}  utils.ErrorResponse
// @Failure      403  {object}  utils.ErrorResponse
// @Router       /orders/{order_uid}/delivery [patch]
func (h *HTTPHandler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := mw.PrincipalFromContext(ctx)

	orderUID, err := uuid.Parse(chi.URLParam(r, "order_uid"))
	if err != nil {
		utils.WriteError(w, "order not found", http.StatusNotFound)
		return
	}

	var req UpdateDeliveryRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	target, err := entities.ToStatus(req.Status)
	if err != nil || target != entities.StatusDelivered {
		utils.WriteError(w, "only delivered is allowed", http.StatusBadRequest)
		return
	}

	order, err := h.svc.Transition(ctx, caller, orderUID, target, nil)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	transitionsApplied.WithLabelValues(target.String()).Inc()
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// writeDomainError maps service errors to HTTP responses. Everything that is
// not a typed domain error counts as storage trouble and surfaces as 503
// without leaking internals.
func (h *HTTPHandler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var invalid *entities.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		transitionsRejected.WithLabelValues("invalid_transition").Inc()
		utils.WriteError(w, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, entities.ErrForbidden):
		transitionsRejected.WithLabelValues("forbidden").Inc()
		utils.WriteError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, entities.ErrOrderNotFound):
		utils.WriteError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, entities.ErrEmptyOrder),
		errors.Is(err, entities.ErrProductNotFound),
		errors.Is(err, entities.ErrVariantNotFound),
		errors.Is(err, entities.ErrInsufficientStock),
		errors.Is(err, entities.ErrUnknownStatus),
		errors.Is(err, entities.ErrRiderRequired),
		errors.Is(err, entities.ErrNotARider):
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
		utils.WriteError(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
