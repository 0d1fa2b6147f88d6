// Package orders is the signed-in user's view of their order history.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// Backend is the read side of the remote order resource.
type Backend interface {
	ByUser(ctx context.Context, userID string) ([]domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	Count(ctx context.Context, userID string) (int, error)
	TotalSpent(ctx context.Context, userID string) (decimal.Decimal, error)
}

// PrincipalSource reports who is signed in.
type PrincipalSource interface {
	Principal() (domain.Principal, bool)
}

// History serves order reads for one session.
type History struct {
	orders   Backend
	who      PrincipalSource
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewHistory creates a history for the principal reported by who.
func NewHistory(orders Backend, who PrincipalSource, notifier notify.Notifier, logger *slog.Logger) *History {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &History{orders: orders, who: who, notifier: notifier, logger: logger}
}

// List returns the user's orders, newest first.
func (h *History) List(ctx context.Context) ([]domain.Order, error) {
	p, err := h.principal()
	if err != nil {
		return nil, err
	}
	orders, err := h.orders.ByUser(ctx, p.UserID)
	if err != nil {
		return nil, h.failed(ctx, err, notify.MsgOrdersLoadFailed, slog.String("user_id", p.UserID))
	}
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt.Time)
	})
	return orders, nil
}

// Get returns one order. Only its owner or an admin may read it.
func (h *History) Get(ctx context.Context, id string) (*domain.Order, error) {
	p, err := h.principal()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	order, err := h.orders.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.notifier.Notify(ctx, notify.Error(notify.MsgOrderLoadFailed))
			return nil, apperrors.NotFound("order", id)
		}
		return nil, h.failed(ctx, err, notify.MsgOrderLoadFailed, slog.String("order_id", id))
	}
	if order.UserID != p.UserID && !p.IsAdmin() {
		logger.WithContext(ctx, h.logger).WarnContext(ctx, "order access denied",
			slog.String("order_id", id),
			slog.String("user_id", p.UserID),
		)
		return nil, apperrors.Forbidden("you do not have access to this order")
	}
	return order, nil
}

// Stats returns the order count and lifetime spend, fetched concurrently.
func (h *History) Stats(ctx context.Context) (*domain.OrderStats, error) {
	p, err := h.principal()
	if err != nil {
		return nil, err
	}

	var stats domain.OrderStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := h.orders.Count(gctx, p.UserID)
		stats.Count = n
		return err
	})
	g.Go(func() error {
		total, err := h.orders.TotalSpent(gctx, p.UserID)
		stats.TotalSpent = total
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, h.failed(ctx, err, notify.MsgOrdersLoadFailed, slog.String("user_id", p.UserID))
	}
	return &stats, nil
}

func (h *History) principal() (domain.Principal, error) {
	p, ok := h.who.Principal()
	if !ok {
		return domain.Principal{}, apperrors.NotSignedIn()
	}
	return p, nil
}

func (h *History) failed(ctx context.Context, err error, msg string, attrs ...any) error {
	attrs = append(attrs, slog.String("error", err.Error()))
	logger.WithContext(ctx, h.logger).ErrorContext(ctx, "order query failed", attrs...)
	h.notifier.Notify(ctx, notify.Error(msg))
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Remote("orders", err)
}
