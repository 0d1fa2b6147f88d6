package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

const cartsService = "carts"

// Carts is the /carts resource.
type Carts struct {
	t *transport
}

// Get fetches the user's cart. A user without a cart yields a not-found error.
func (c *Carts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.t.call(ctx, cartsService, http.MethodGet, "/carts/"+seg(userID), nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create creates an empty cart for the user.
func (c *Carts) Create(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.t.call(ctx, cartsService, http.MethodPost, "/carts/"+seg(userID), nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem adds quantity units of productID.
func (c *Carts) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	q := url.Values{}
	q.Set("productId", productID)
	q.Set("quantity", strconv.Itoa(quantity))

	var cart domain.Cart
	if err := c.t.call(ctx, cartsService, http.MethodPost, "/carts/"+seg(userID)+"/items", q, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateItem sets the quantity of productID.
func (c *Carts) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	q := url.Values{}
	q.Set("quantity", strconv.Itoa(quantity))

	var cart domain.Cart
	path := "/carts/" + seg(userID) + "/items/" + seg(productID)
	if err := c.t.call(ctx, cartsService, http.MethodPut, path, q, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem removes the line for productID.
func (c *Carts) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	var cart domain.Cart
	path := "/carts/" + seg(userID) + "/items/" + seg(productID)
	if err := c.t.call(ctx, cartsService, http.MethodDelete, path, nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Clear removes every line from the user's cart.
func (c *Carts) Clear(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.t.call(ctx, cartsService, http.MethodDelete, "/carts/"+seg(userID), nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Size returns the item count reported by the backend.
func (c *Carts) Size(ctx context.Context, userID string) (int, error) {
	var n int
	if err := c.t.call(ctx, cartsService, http.MethodGet, "/carts/"+seg(userID)+"/size", nil, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Total returns the monetary total reported by the backend.
func (c *Carts) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := c.t.call(ctx, cartsService, http.MethodGet, "/carts/"+seg(userID)+"/total", nil, nil, &total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
