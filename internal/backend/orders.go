package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

const ordersService = "orders"

// Orders is the /orders resource.
type Orders struct {
	t *transport
}

func (o *Orders) list(ctx context.Context, path string) ([]domain.Order, error) {
	orders := []domain.Order{}
	if err := o.t.call(ctx, ordersService, http.MethodGet, path, nil, nil, &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// List returns every order.
func (o *Orders) List(ctx context.Context) ([]domain.Order, error) {
	return o.list(ctx, "/orders")
}

// ByUser returns the orders of one user.
func (o *Orders) ByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return o.list(ctx, "/orders/user/"+seg(userID))
}

// ByStatus returns the orders in a status.
func (o *Orders) ByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return o.list(ctx, "/orders/status/"+seg(string(status)))
}

// Get fetches one order.
func (o *Orders) Get(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := o.t.call(ctx, ordersService, http.MethodGet, "/orders/"+seg(id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateFromCart turns the user's cart into a PENDING order. The backend
// leaves the cart untouched.
func (o *Orders) CreateFromCart(ctx context.Context, userID string) (*domain.Order, error) {
	var order domain.Order
	if err := o.t.call(ctx, ordersService, http.MethodPost, "/orders/user/"+seg(userID), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves an order to status.
func (o *Orders) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	var order domain.Order
	q := url.Values{"status": {string(status)}}
	if err := o.t.call(ctx, ordersService, http.MethodPatch, "/orders/"+seg(id)+"/status", q, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Cancel deletes an order.
func (o *Orders) Cancel(ctx context.Context, id string) error {
	return o.t.call(ctx, ordersService, http.MethodDelete, "/orders/"+seg(id), nil, nil, nil)
}

// Count returns how many orders the user placed.
func (o *Orders) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := o.t.call(ctx, ordersService, http.MethodGet, "/orders/user/"+seg(userID)+"/count", nil, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// TotalSpent returns the user's lifetime spend.
func (o *Orders) TotalSpent(ctx context.Context, userID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := o.t.call(ctx, ordersService, http.MethodGet, "/orders/user/"+seg(userID)+"/total-spent", nil, nil, &total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
