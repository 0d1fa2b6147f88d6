// Package session holds the per-visitor storefront state: who is signed in,
// their cart mirror and their notification inbox, plus the manager that
// issues session tokens and evicts idle sessions.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/utafrali/storefront/internal/account"
	"github.com/utafrali/storefront/internal/admin"
	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/notify"
	"github.com/utafrali/storefront/internal/orders"
	"github.com/utafrali/storefront/pkg/logger"
)

// Session is one visitor's state. Identity changes bind and unbind the cart
// synchronizer; nothing else in the session outlives it.
type Session struct {
	ID string

	Identity *identity.Source
	Account  *account.Accounts
	Cart     *cartsync.Synchronizer
	Inbox    *notify.Inbox
	Catalog  *catalog.Catalog
	Checkout *checkout.Checkout
	Orders   *orders.History
	Admin    *admin.Console

	createdAt time.Time
	lastSeen  atomic.Int64
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen is the time of the most recent activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

// CreatedAt is when the session was built.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Principal returns the signed-in principal.
func (s *Session) Principal() (domain.Principal, bool) {
	return s.Identity.Principal()
}

// View is a consistent read of who is signed in and their cart.
type View struct {
	Principal *domain.Principal
	State     identity.State
	Cart      cartsync.Snapshot
}

// View reads the principal and the cart together. A cart snapshot that does
// not belong to the principal read alongside it, which happens while a
// sign-in switch is still propagating, is reported as loading with no mirror.
func (s *Session) View() View {
	v := View{State: s.Identity.State(), Cart: s.Cart.Snapshot()}
	p, ok := s.Identity.Principal()
	if !ok {
		if v.Cart.UserID != "" || v.Cart.Mirror != nil {
			v.Cart = cartsync.Snapshot{Phase: cartsync.Unbound, Epoch: v.Cart.Epoch}
		}
		return v
	}
	v.Principal = &p
	if v.Cart.UserID != p.UserID || (v.Cart.Mirror != nil && v.Cart.Mirror.UserID != p.UserID) {
		v.Cart = cartsync.Snapshot{Phase: cartsync.Loading, UserID: p.UserID, Loading: true, Epoch: v.Cart.Epoch}
	}
	return v
}

// Close tears the session down: the cart synchronizer is unbound and its
// subscriptions closed.
func (s *Session) Close(ctx context.Context) {
	s.Cart.Close(ctx)
}

// Options tunes the components every session is built with.
type Options struct {
	InboxSize     int
	TaxRate       decimal.Decimal
	Currency      currency.Unit
	FeaturedCount int

	// Activity receives successful cart mutations. Nil disables it.
	Activity cartsync.ActivitySink
	// Orders receives placed orders. Nil disables it.
	Orders checkout.OrderSink
}

// Factory builds sessions over one backend client.
type Factory struct {
	client *backend.Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewFactory creates a session factory.
func NewFactory(client *backend.Client, opts Options, logger *slog.Logger) *Factory {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 50
	}
	if opts.Currency == (currency.Unit{}) {
		opts.Currency = currency.USD
	}
	return &Factory{
		client: client,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// New builds an unauthenticated session with the given ID.
func (f *Factory) New(id string) *Session {
	log := f.logger.With(slog.String("session_id", id))
	inbox := notify.NewInbox(f.opts.InboxSize)
	notifier := notify.Multi(inbox, notify.NewLogNotifier(log))

	var cartOpts []cartsync.Option
	if f.opts.Activity != nil {
		cartOpts = append(cartOpts, cartsync.WithActivity(f.opts.Activity))
	}
	cart := cartsync.New(f.client.Carts, notifier, log, cartOpts...)
	source := identity.NewSource(f.client.Users, notifier, log)

	checkoutOpts := []checkout.Option{checkout.WithCurrency(f.opts.Currency)}
	if !f.opts.TaxRate.IsZero() {
		checkoutOpts = append(checkoutOpts, checkout.WithTaxRate(f.opts.TaxRate))
	}
	if f.opts.Orders != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithOrderSink(f.opts.Orders))
	}

	s := &Session{
		ID:       id,
		Identity: source,
		Account:  account.New(f.client.Users, source, notifier, log),
		Cart:     cart,
		Inbox:    inbox,
		Catalog:  catalog.New(f.client.Products, notifier, log, catalog.WithFeaturedCount(f.opts.FeaturedCount)),
		Checkout: checkout.New(f.client.Orders, cart, notifier, log, checkoutOpts...),
		Orders:   orders.NewHistory(f.client.Orders, source, notifier, log),
		Admin: admin.NewConsole(admin.Backends{
			Orders:   f.client.Orders,
			Users:    f.client.Users,
			Products: f.client.Products,
		}, source, notifier, log),
		createdAt: f.now(),
	}
	s.Touch(s.createdAt)

	// The old mirror is dropped before the new principal becomes readable.
	source.BeforeChange(func(ctx context.Context, p *domain.Principal) {
		cart.Prepare(logger.WithSessionID(ctx, id), p)
	})
	source.OnChange(func(ctx context.Context, p *domain.Principal) {
		ctx = logger.WithSessionID(ctx, id)
		if p == nil {
			cart.Unbind(ctx)
			return
		}
		// Load failures are already logged and notified by the synchronizer.
		_ = cart.Bind(ctx, *p)
	})
	return s
}
