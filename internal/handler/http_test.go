package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/techbreeze/order-service/internal/entities"
	"github.com/techbreeze/order-service/internal/handler"
	mw "github.com/techbreeze/order-service/internal/middleware"
	"github.com/techbreeze/order-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceStub struct {
	createOrder  func(ctx context.Context, customerUID uuid.UUID, input service.CreateOrderInput) (entities.Order, error)
	getOrder     func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error)
	listCustomer func(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error)
	listRider    func(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error)
	listAll      func(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error)
	transition   func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error)
}

func (s *serviceStub) CreateOrder(ctx context.Context, customerUID uuid.UUID, input service.CreateOrderInput) (entities.Order, error) {
	return s.createOrder(ctx, customerUID, input)
}

func (s *serviceStub) GetOrder(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error) {
	return s.getOrder(ctx, caller, orderUID)
}

func (s *serviceStub) ListCustomerOrders(ctx context.Context, customerUID uuid.UUID) ([]entities.Order, error) {
	return s.listCustomer(ctx, customerUID)
}

func (s *serviceStub) ListRiderOrders(ctx context.Context, riderUID uuid.UUID) ([]entities.Order, error) {
	return s.listRider(ctx, riderUID)
}

func (s *serviceStub) ListOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error) {
	return s.listAll(ctx, filter)
}

func (s *serviceStub) Transition(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
	return s.transition(ctx, caller, orderUID, target, riderUID)
}

// authAs injects a fixed principal in place of the token-resolving middleware.
func authAs(p entities.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(mw.WithPrincipal(r.Context(), p)))
		})
	}
}

func newRouter(p entities.Principal, svc *serviceStub) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewHTTPHandler(logger, authAs(p), svc)
	r := chi.NewRouter()
	h.Init(r)
	return r
}

func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sampleOrder(customerUID uuid.UUID) entities.Order {
	now := time.Now().UTC()
	return entities.Order{
		ID:         uuid.New(),
		CustomerID: customerUID,
		Items: []entities.LineItem{
			{ProductID: uuid.New(), Variant: "white", UnitPrice: decimal.NewFromInt(120), Quantity: 1},
		},
		TotalPrice:      decimal.NewFromInt(120),
		ShippingAddress: "221B Baker Street",
		Status:          entities.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateOrderHandler(t *testing.T) {
	customerUID := uuid.New()
	customer := entities.Principal{UserID: customerUID, Role: entities.RoleCustomer}

	t.Run("created", func(t *testing.T) {
		var gotInput service.CreateOrderInput
		stub := &serviceStub{
			createOrder: func(ctx context.Context, uid uuid.UUID, input service.CreateOrderInput) (entities.Order, error) {
				assert.Equal(t, customerUID, uid)
				gotInput = input
				return sampleOrder(uid), nil
			},
		}
		router := newRouter(customer, stub)

		rec := doRequest(t, router, http.MethodPost, "/orders", map[string]any{
			"line_items": []map[string]any{
				{"product_id": uuid.New().String(), "variant": "white", "quantity": 2},
			},
			"shipping_address": "221B Baker Street",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, gotInput.Items, 1)
		assert.Equal(t, 2, gotInput.Items[0].Quantity)
		assert.Equal(t, "221B Baker Street", gotInput.ShippingAddress)
	})

	t.Run("validation failure", func(t *testing.T) {
		router := newRouter(customer, &serviceStub{})

		rec := doRequest(t, router, http.MethodPost, "/orders", map[string]any{
			"line_items":       []map[string]any{},
			"shipping_address": "",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		stub := &serviceStub{
			createOrder: func(ctx context.Context, uid uuid.UUID, input service.CreateOrderInput) (entities.Order, error) {
				return entities.Order{}, entities.ErrInsufficientStock
			},
		}
		router := newRouter(customer, stub)

		rec := doRequest(t, router, http.MethodPost, "/orders", map[string]any{
			"line_items": []map[string]any{
				{"product_id": uuid.New().String(), "variant": "white", "quantity": 200},
			},
			"shipping_address": "somewhere",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("admin cannot place orders", func(t *testing.T) {
		admin := entities.Principal{UserID: uuid.New(), Role: entities.RoleAdmin}
		router := newRouter(admin, &serviceStub{})

		rec := doRequest(t, router, http.MethodPost, "/orders", map[string]any{})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestGetOrderHandler(t *testing.T) {
	customerUID := uuid.New()
	customer := entities.Principal{UserID: customerUID, Role: entities.RoleCustomer}
	order := sampleOrder(customerUID)

	t.Run("found", func(t *testing.T) {
		stub := &serviceStub{
			getOrder: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error) {
				assert.Equal(t, order.ID, orderUID)
				return order, nil
			},
		}
		router := newRouter(customer, stub)

		rec := doRequest(t, router, http.MethodGet, "/orders/"+order.ID.String(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var got handler.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, order.ID.String(), got.OrderUID)
		assert.Equal(t, "pending", got.Status)
	})

	t.Run("malformed uid reads as not found", func(t *testing.T) {
		router := newRouter(customer, &serviceStub{})

		rec := doRequest(t, router, http.MethodGet, "/orders/not-a-uuid", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		stub := &serviceStub{
			getOrder: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID) (entities.Order, error) {
				return entities.Order{}, entities.ErrForbidden
			},
		}
		router := newRouter(customer, stub)

		rec := doRequest(t, router, http.MethodGet, "/orders/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestListOrdersHandler(t *testing.T) {
	admin := entities.Principal{UserID: uuid.New(), Role: entities.RoleAdmin}

	t.Run("paginates", func(t *testing.T) {
		var gotFilter entities.OrderFilter
		stub := &serviceStub{
			listAll: func(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, int64, error) {
				gotFilter = filter
				return []entities.Order{sampleOrder(uuid.New())}, 21, nil
			},
		}
		router := newRouter(admin, stub)

		rec := doRequest(t, router, http.MethodGet, "/orders?status=pending&page=2&limit=10", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		require.NotNil(t, gotFilter.Status)
		assert.Equal(t, entities.StatusPending, *gotFilter.Status)
		assert.Equal(t, uint64(10), gotFilter.Limit)
		assert.Equal(t, uint64(10), gotFilter.Offset)

		var got handler.OrderList
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.CurrentPage)
		assert.Equal(t, 3, got.TotalPages)
		assert.Equal(t, int64(21), got.TotalOrders)
	})

	t.Run("unknown status", func(t *testing.T) {
		router := newRouter(admin, &serviceStub{})

		rec := doRequest(t, router, http.MethodGet, "/orders?status=refunded", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("customer is rejected", func(t *testing.T) {
		customer := entities.Principal{UserID: uuid.New(), Role: entities.RoleCustomer}
		router := newRouter(customer, &serviceStub{})

		rec := doRequest(t, router, http.MethodGet, "/orders", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestUpdateStatusHandler(t *testing.T) {
	customerUID := uuid.New()
	customer := entities.Principal{UserID: customerUID, Role: entities.RoleCustomer}
	admin := entities.Principal{UserID: uuid.New(), Role: entities.RoleAdmin}
	order := sampleOrder(customerUID)

	t.Run("applies transition", func(t *testing.T) {
		stub := &serviceStub{
			transition: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
				assert.Equal(t, entities.StatusPaid, target)
				assert.Nil(t, riderUID)
				updated := order
				updated.Status = entities.StatusPaid
				return updated, nil
			},
		}
		router := newRouter(customer, stub)

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]any{
			"status": "paid",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("passes rider through", func(t *testing.T) {
		riderUID := uuid.New()
		stub := &serviceStub{
			transition: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, rUID *uuid.UUID) (entities.Order, error) {
				require.NotNil(t, rUID)
				assert.Equal(t, riderUID, *rUID)
				updated := order
				updated.Status = entities.StatusShipped
				updated.RiderID = rUID
				return updated, nil
			},
		}
		router := newRouter(admin, stub)

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]any{
			"status":   "shipped",
			"rider_id": riderUID.String(),
		})
		assert.Equal(t, http.StatusOK, rec.Code)

		var got handler.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, riderUID.String(), got.RiderUID)
	})

	t.Run("unknown status", func(t *testing.T) {
		router := newRouter(customer, &serviceStub{})

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]any{
			"status": "refunded",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid transition", func(t *testing.T) {
		stub := &serviceStub{
			transition: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
				return entities.Order{}, &entities.InvalidTransitionError{From: entities.StatusDelivered, To: target}
			},
		}
		router := newRouter(admin, stub)

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]any{
			"status": "paid",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "delivered")
	})

	t.Run("storage trouble maps to 503", func(t *testing.T) {
		stub := &serviceStub{
			transition: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
				return entities.Order{}, context.DeadlineExceeded
			},
		}
		router := newRouter(admin, stub)

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]any{
			"status": "paid",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUpdateDeliveryHandler(t *testing.T) {
	riderUID := uuid.New()
	rider := entities.Principal{UserID: riderUID, Role: entities.RoleRider}
	order := sampleOrder(uuid.New())

	t.Run("delivers", func(t *testing.T) {
		stub := &serviceStub{
			transition: func(ctx context.Context, caller entities.Principal, orderUID uuid.UUID, target entities.Status, riderUID *uuid.UUID) (entities.Order, error) {
				assert.Equal(t, entities.StatusDelivered, target)
				updated := order
				updated.Status = entities.StatusDelivered
				return updated, nil
			},
		}
		router := newRouter(rider, stub)

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/delivery", map[string]any{
			"status": "delivered",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("only delivered is accepted", func(t *testing.T) {
		router := newRouter(rider, &serviceStub{})

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/delivery", map[string]any{
			"status": "cancelled",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("customer is rejected", func(t *testing.T) {
		customer := entities.Principal{UserID: uuid.New(), Role: entities.RoleCustomer}
		router := newRouter(customer, &serviceStub{})

		rec := doRequest(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/delivery", map[string]any{
			"status": "delivered",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestListHandlers(t *testing.T) {
	t.Run("my orders", func(t *testing.T) {
		customerUID := uuid.New()
		stub := &serviceStub{
			listCustomer: func(ctx context.Context, uid uuid.UUID) ([]entities.Order, error) {
				assert.Equal(t, customerUID, uid)
				return []entities.Order{sampleOrder(customerUID)}, nil
			},
		}
		router := newRouter(entities.Principal{UserID: customerUID, Role: entities.RoleCustomer}, stub)

		rec := doRequest(t, router, http.MethodGet, "/orders/my-orders", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rider orders", func(t *testing.T) {
		riderUID := uuid.New()
		stub := &serviceStub{
			listRider: func(ctx context.Context, uid uuid.UUID) ([]entities.Order, error) {
				assert.Equal(t, riderUID, uid)
				return nil, nil
			},
		}
		router := newRouter(entities.Principal{UserID: riderUID, Role: entities.RoleRider}, stub)

		rec := doRequest(t, router, http.MethodGet, "/rider/orders", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
