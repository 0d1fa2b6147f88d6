// Package admin is the back office: order, user and product management for
// principals with the admin role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/validator"
)

// OrderBackend is the remote order resource.
type OrderBackend interface {
	List(ctx context.Context) ([]domain.Order, error)
	ByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, id string) error
}

// UserBackend is the remote user resource.
type UserBackend interface {
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	ByUsername(ctx context.Context, username string) (*domain.User, error)
	ByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, in *domain.User) (*domain.User, error)
	Update(ctx context.Context, id string, in *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// ProductBackend is the write side of the remote product resource.
type ProductBackend interface {
	Create(ctx context.Context, in *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, id string, in *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	UpdateStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

// PrincipalSource reports who is signed in.
type PrincipalSource interface {
	Principal() (domain.Principal, bool)
}

// Backends groups the remote resources the console manages.
type Backends struct {
	Orders   OrderBackend
	Users    UserBackend
	Products ProductBackend
}

// Console runs admin operations for one session. Every operation checks the
// admin role before any remote call.
type Console struct {
	backends Backends
	who      PrincipalSource
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewConsole creates a console acting as the principal reported by who.
func NewConsole(backends Backends, who PrincipalSource, notifier notify.Notifier, logger *slog.Logger) *Console {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Console{backends: backends, who: who, notifier: notifier, logger: logger}
}

func (c *Console) authorize() (domain.Principal, error) {
	p, ok := c.who.Principal()
	if !ok {
		return domain.Principal{}, apperrors.NotSignedIn()
	}
	if !p.IsAdmin() {
		return domain.Principal{}, apperrors.Forbidden("admin role required")
	}
	return p, nil
}

// fail logs and notifies a failed remote call and returns it as an
// application error.
func (c *Console) fail(ctx context.Context, err error, msg, action string, attrs ...any) error {
	attrs = append(attrs, slog.String("error", err.Error()))
	logger.WithContext(ctx, c.logger).ErrorContext(ctx, "admin "+action+" failed", attrs...)
	c.notifier.Notify(ctx, notify.Error(msg))
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Remote("admin", err)
}

func (c *Console) done(ctx context.Context, msg, action string, attrs ...any) {
	logger.WithContext(ctx, c.logger).InfoContext(ctx, "admin "+action, attrs...)
	c.notifier.Notify(ctx, notify.Success(msg))
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput(kind + " id is required")
	}
	return nil
}

// ============================================================================
// Orders
// ============================================================================

// Orders lists orders with the given status, or every order when status is
// empty or ALL.
func (c *Console) Orders(ctx context.Context, status string, page pagination.Params) (pagination.Result[domain.Order], error) {
	var empty pagination.Result[domain.Order]
	if _, err := c.authorize(); err != nil {
		return empty, err
	}

	var (
		orders []domain.Order
		err    error
	)
	if status == "" || strings.EqualFold(status, domain.StatusFilterAll) {
		orders, err = c.backends.Orders.List(ctx)
	} else {
		st, ok := domain.ParseOrderStatus(status)
		if !ok {
			return empty, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
		}
		orders, err = c.backends.Orders.ByStatus(ctx, st)
	}
	if err != nil {
		return empty, c.fail(ctx, err, notify.MsgAdminOrdersLoadFailed, "list orders", slog.String("status", status))
	}
	return pagination.Slice(orders, page), nil
}

// UpdateOrderStatus moves an order to status.
func (c *Console) UpdateOrderStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := requireID("order", id); err != nil {
		return nil, err
	}
	st, ok := domain.ParseOrderStatus(status)
	if !ok {
		c.notifier.Notify(ctx, notify.Error(notify.MsgOrderStatusFailed))
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
	}

	order, err := c.backends.Orders.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgOrderStatusFailed, "update order status", slog.String("order_id", id))
	}
	c.done(ctx, fmt.Sprintf(notify.MsgOrderStatusUpdated, st), "updated order status",
		slog.String("order_id", id), slog.String("status", string(st)))
	return order, nil
}

// CancelOrder deletes an order.
func (c *Console) CancelOrder(ctx context.Context, id string) error {
	if _, err := c.authorize(); err != nil {
		return err
	}
	if err := requireID("order", id); err != nil {
		return err
	}
	if err := c.backends.Orders.Cancel(ctx, id); err != nil {
		return c.fail(ctx, err, notify.MsgOrderCancelFailed, "cancel order", slog.String("order_id", id))
	}
	c.done(ctx, notify.MsgOrderCancelled, "cancelled order", slog.String("order_id", id))
	return nil
}

// ============================================================================
// Users
// ============================================================================

// Users lists every user.
func (c *Console) Users(ctx context.Context, page pagination.Params) (pagination.Result[domain.User], error) {
	var empty pagination.Result[domain.User]
	if _, err := c.authorize(); err != nil {
		return empty, err
	}
	users, err := c.backends.Users.List(ctx)
	if err != nil {
		return empty, c.fail(ctx, err, notify.MsgUsersLoadFailed, "list users")
	}
	return pagination.Slice(users, page), nil
}

// User fetches one user.
func (c *Console) User(ctx context.Context, id string) (*domain.User, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := requireID("user", id); err != nil {
		return nil, err
	}
	u, err := c.backends.Users.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, c.fail(ctx, err, notify.MsgUserLoadFailed, "get user", slog.String("target_user_id", id))
	}
	return u, nil
}

// CreateUser validates in, rejects a taken username or email and creates
// the user. A password is required on create.
func (c *Console) CreateUser(ctx context.Context, in domain.UserInput) (*domain.User, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := validator.Validate(in); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgUserCreateFailed))
		return nil, err
	}
	if err := validator.Var("password", in.Password, "required,min=6"); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgUserCreateFailed))
		return nil, err
	}
	user := in.ToUser()
	if err := c.ensureUnique(ctx, user, ""); err != nil {
		return nil, err
	}

	created, err := c.backends.Users.Create(ctx, user)
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgUserCreateFailed, "create user", slog.String("username", user.Username))
	}
	c.done(ctx, notify.MsgUserCreated, "created user", slog.String("target_user_id", created.ID))
	return created, nil
}

// UpdateUser validates in and replaces the user.
func (c *Console) UpdateUser(ctx context.Context, id string, in domain.UserInput) (*domain.User, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := requireID("user", id); err != nil {
		return nil, err
	}
	if err := validator.Validate(in); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgUserUpdateFailed))
		return nil, err
	}
	user := in.ToUser()
	if err := c.ensureUnique(ctx, user, id); err != nil {
		return nil, err
	}

	updated, err := c.backends.Users.Update(ctx, id, user)
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgUserUpdateFailed, "update user", slog.String("target_user_id", id))
	}
	c.done(ctx, notify.MsgUserUpdated, "updated user", slog.String("target_user_id", id))
	return updated, nil
}

// ensureUnique rejects a username or email held by a user other than self.
func (c *Console) ensureUnique(ctx context.Context, u *domain.User, self string) error {
	checks := []struct {
		field  string
		lookup func(context.Context, string) (*domain.User, error)
		value  string
	}{
		{"username", c.backends.Users.ByUsername, u.Username},
		{"email", c.backends.Users.ByEmail, u.Email},
	}
	for _, chk := range checks {
		existing, err := chk.lookup(ctx, chk.value)
		switch {
		case apperrors.IsNotFound(err):
			continue
		case err != nil:
			return c.fail(ctx, err, notify.MsgUserCreateFailed, "lookup "+chk.field)
		case existing.ID != self:
			c.notifier.Notify(ctx, notify.Error(fmt.Sprintf("That %s is already taken", chk.field)))
			return apperrors.Conflict(fmt.Sprintf("%s %q is already taken", chk.field, chk.value))
		}
	}
	return nil
}

// DeleteUser removes a user. Admins cannot delete themselves.
func (c *Console) DeleteUser(ctx context.Context, id string) error {
	p, err := c.authorize()
	if err != nil {
		return err
	}
	if err := requireID("user", id); err != nil {
		return err
	}
	if id == p.UserID {
		c.notifier.Notify(ctx, notify.Error(notify.MsgUserDeleteFailed))
		return apperrors.Conflict("you cannot delete your own account")
	}
	if err := c.backends.Users.Delete(ctx, id); err != nil {
		return c.fail(ctx, err, notify.MsgUserDeleteFailed, "delete user", slog.String("target_user_id", id))
	}
	c.done(ctx, notify.MsgUserDeleted, "deleted user", slog.String("target_user_id", id))
	return nil
}

// ============================================================================
// Products
// ============================================================================

func validateProduct(in domain.ProductInput) error {
	if err := validator.Validate(in); err != nil {
		return err
	}
	if !in.Price.IsPositive() {
		return apperrors.InvalidInput("price must be greater than 0")
	}
	return nil
}

// CreateProduct validates in and adds it to the catalog.
func (c *Console) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := validateProduct(in); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgProductCreateFailed))
		return nil, err
	}
	created, err := c.backends.Products.Create(ctx, in.ToProduct())
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgProductCreateFailed, "create product", slog.String("name", in.Name))
	}
	c.done(ctx, notify.MsgProductCreated, "created product", slog.String("product_id", created.ID))
	return created, nil
}

// UpdateProduct validates in and replaces the product.
func (c *Console) UpdateProduct(ctx context.Context, id string, in domain.ProductInput) (*domain.Product, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := requireID("product", id); err != nil {
		return nil, err
	}
	if err := validateProduct(in); err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgProductUpdateFailed))
		return nil, err
	}
	updated, err := c.backends.Products.Update(ctx, id, in.ToProduct())
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgProductUpdateFailed, "update product", slog.String("product_id", id))
	}
	c.done(ctx, notify.MsgProductUpdated, "updated product", slog.String("product_id", id))
	return updated, nil
}

// DeleteProduct removes a product.
func (c *Console) DeleteProduct(ctx context.Context, id string) error {
	if _, err := c.authorize(); err != nil {
		return err
	}
	if err := requireID("product", id); err != nil {
		return err
	}
	if err := c.backends.Products.Delete(ctx, id); err != nil {
		return c.fail(ctx, err, notify.MsgProductDeleteFailed, "delete product", slog.String("product_id", id))
	}
	c.done(ctx, notify.MsgProductDeleted, "deleted product", slog.String("product_id", id))
	return nil
}

// UpdateStock adjusts stock by quantity. Negative quantities remove stock.
func (c *Console) UpdateStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if _, err := c.authorize(); err != nil {
		return nil, err
	}
	if err := requireID("product", id); err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, apperrors.InvalidInput("quantity must not be zero")
	}
	p, err := c.backends.Products.UpdateStock(ctx, id, quantity)
	if err != nil {
		return nil, c.fail(ctx, err, notify.MsgStockUpdateFailed, "update stock", slog.String("product_id", id))
	}
	c.done(ctx, notify.MsgStockUpdated, "updated stock", slog.String("product_id", id), slog.Int("quantity", quantity))
	return p, nil
}
