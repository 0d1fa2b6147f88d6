// Package checkout turns the signed-in user's cart into an order.
package checkout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// DefaultTaxRate is the display-only tax estimate.
var DefaultTaxRate = decimal.NewFromFloat(0.10)

// OrderBackend creates orders from the remote cart.
type OrderBackend interface {
	CreateFromCart(ctx context.Context, userID string) (*domain.Order, error)
}

// Cart is the session's cart mirror.
type Cart interface {
	Principal() (domain.Principal, bool)
	Mirror() *domain.CartMirror
	Refresh(ctx context.Context) error
	Settle(ctx context.Context, userID string, fn func(ctx context.Context, m *domain.CartMirror) error) error
}

// OrderSink is told about every placed order. It must not block.
type OrderSink interface {
	OrderPlaced(ctx context.Context, order *domain.Order, shipping domain.ShippingInfo)
}

// Option configures a Checkout.
type Option func(*Checkout)

// WithTaxRate sets the display-only tax rate.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(c *Checkout) { c.taxRate = rate }
}

// WithCurrency sets the display currency.
func WithCurrency(unit currency.Unit) Option {
	return func(c *Checkout) { c.unit = unit }
}

// WithOrderSink reports placed orders to sink.
func WithOrderSink(sink OrderSink) Option {
	return func(c *Checkout) { c.sink = sink }
}

// Summary is the order summary shown before placing an order. Tax is an
// estimate for display only; the backend computes the charged total.
type Summary struct {
	Items    []domain.CartLine `json:"items"`
	Count    int               `json:"count"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	TaxRate  decimal.Decimal   `json:"taxRate"`
	Tax      decimal.Decimal   `json:"tax"`
	Total    decimal.Decimal   `json:"total"`
	Currency string            `json:"currency"`
	Display  SummaryDisplay    `json:"display"`
}

// SummaryDisplay holds the formatted amounts.
type SummaryDisplay struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// Checkout places orders for one session.
type Checkout struct {
	orders   OrderBackend
	cart     Cart
	notifier notify.Notifier
	logger   *slog.Logger
	taxRate  decimal.Decimal
	unit     currency.Unit
	sink     OrderSink
	flight   singleflight.Group
}

// New creates a checkout over cart.
func New(orders OrderBackend, cart Cart, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Checkout {
	if notifier == nil {
		notifier = notify.Discard
	}
	c := &Checkout{
		orders:   orders,
		cart:     cart,
		notifier: notifier,
		logger:   logger,
		taxRate:  DefaultTaxRate,
		unit:     currency.USD,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize prices the current cart mirror, loading it first if there is none.
func (c *Checkout) Summarize(ctx context.Context) (*Summary, error) {
	if _, ok := c.cart.Principal(); !ok {
		return nil, apperrors.NotSignedIn()
	}
	mirror := c.cart.Mirror()
	if mirror == nil {
		if err := c.cart.Refresh(ctx); err != nil {
			return nil, err
		}
		if mirror = c.cart.Mirror(); mirror == nil {
			return nil, apperrors.ServiceUnavailable("cart is not available")
		}
	}
	return c.summarize(mirror), nil
}

func (c *Checkout) summarize(m *domain.CartMirror) *Summary {
	subtotal := domain.NewMoney(m.Total, c.unit).Rounded()
	tax := domain.NewMoney(subtotal.Mul(c.taxRate), c.unit).Rounded()
	total := subtotal.Add(tax)
	return &Summary{
		Items:    m.Items,
		Count:    m.Count,
		Subtotal: subtotal,
		TaxRate:  c.taxRate,
		Tax:      tax,
		Total:    total,
		Currency: c.unit.String(),
		Display: SummaryDisplay{
			Subtotal: domain.NewMoney(subtotal, c.unit).String(),
			Tax:      domain.NewMoney(tax, c.unit).String(),
			Total:    domain.NewMoney(total, c.unit).String(),
		},
	}
}

// PlaceOrder validates shipping, creates an order from the remote cart and
// then clears the cart. Cart mutations wait until the order is placed and the
// cart cleared. An empty cart is rejected without any remote call. Repeated
// submissions for the same user while one is outstanding share it.
func (c *Checkout) PlaceOrder(ctx context.Context, shipping domain.ShippingInfo) (*domain.Order, error) {
	p, ok := c.cart.Principal()
	if !ok {
		c.notifier.Notify(ctx, notify.Error(notify.MsgSignInToCheckout))
		return nil, apperrors.NotSignedIn()
	}

	shipping = shipping.Trimmed()
	if err := validator.Validate(shipping); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgShippingInvalid))
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan("place|"+p.UserID, func() (any, error) {
		return c.place(detached, p.UserID, shipping)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Order), nil
	case <-ctx.Done():
		return nil, apperrors.Canceled(ctx.Err())
	}
}

func (c *Checkout) place(ctx context.Context, userID string, shipping domain.ShippingInfo) (*domain.Order, error) {
	log := logger.WithContext(ctx, c.logger).With(slog.String("user_id", userID))

	var order *domain.Order
	err := c.cart.Settle(ctx, userID, func(ctx context.Context, m *domain.CartMirror) error {
		if m == nil || m.IsEmpty() {
			c.notifier.Notify(ctx, notify.Error(notify.MsgCartEmpty))
			return apperrors.InvalidInput("cart is empty")
		}

		created, err := c.orders.CreateFromCart(ctx, userID)
		if err != nil {
			log.ErrorContext(ctx, "failed to place order", slog.String("error", err.Error()))
			c.notifier.Notify(ctx, notify.Error(notify.MsgOrderFailed))
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return err
			}
			return apperrors.Remote("orders", err)
		}
		order = created

		log.InfoContext(ctx, "order placed",
			slog.String("order_id", order.ID),
			slog.String("total_amount", order.TotalAmount.String()),
			slog.Int("item_count", order.ItemCount()),
		)
		c.notifier.Notify(ctx, notify.Success(notify.MsgOrderPlaced))
		if c.sink != nil {
			c.sink.OrderPlaced(ctx, order, shipping)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
