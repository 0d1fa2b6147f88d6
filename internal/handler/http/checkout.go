package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
)

// CheckoutHandler handles the order summary and order placement.
type CheckoutHandler struct {
	logger *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{logger: logger}
}

// Summary handles GET /api/checkout/summary
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request, s *session.Session) {
	summary, err := s.Checkout.Summarize(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, summary)
}

// PlaceOrder handles POST /api/checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var shipping domain.ShippingInfo
	if !decodeJSON(w, r, &shipping) {
		return
	}

	order, err := s.Checkout.PlaceOrder(r.Context(), shipping)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, order)
}

// OrderHandler handles the signed-in user's order history.
type OrderHandler struct {
	logger *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(logger *slog.Logger) *OrderHandler {
	return &OrderHandler{logger: logger}
}

// List handles GET /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request, s *session.Session) {
	orders, err := s.Orders.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, orders)
}

// Stats handles GET /api/orders/stats
func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request, s *session.Session) {
	stats, err := s.Orders.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
}

// Get handles GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request, s *session.Session) {
	order, err := s.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// Notifications handles GET /api/notifications. Reading drains the inbox.
func Notifications(w http.ResponseWriter, r *http.Request, s *session.Session) {
	httputil.WriteData(w, http.StatusOK, s.Inbox.Drain())
}
