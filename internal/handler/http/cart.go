package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
)

// cartEventKeepAlive is how often an idle event stream sends a comment line.
const cartEventKeepAlive = 15 * time.Second

// CartHandler handles HTTP requests for the session's cart.
type CartHandler struct {
	logger    *slog.Logger
	keepAlive time.Duration
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger, keepAlive: cartEventKeepAlive}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Quantity defaults to 1 when omitted.
type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// UpdateQuantityRequest is the JSON request body for changing a line's
// quantity. Zero or less removes the line.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// --- Handlers ---

// Get handles GET /api/cart
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request, s *session.Session) {
	httputil.WriteData(w, http.StatusOK, s.View().Cart)
}

// Events handles GET /api/cart/events. It streams the cart as server-sent
// events, one "cart" event per state change, until the client goes away or
// the session is torn down.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request, s *session.Session) {
	rc := http.NewResponseController(w)
	updates, cancel := s.Cart.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			seq++
			raw, err := json.Marshal(s.View().Cart)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode cart event", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: cart\ndata: %s\n\n", seq, raw); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Refresh handles POST /api/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.respond(w, r, s, s.Cart.Refresh(r.Context()))
}

// AddItem handles POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	h.respond(w, r, s, s.Cart.AddItem(r.Context(), req.ProductID, quantity))
}

// UpdateItem handles PUT /api/cart/items/{productId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req UpdateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r, s, s.Cart.UpdateItem(r.Context(), chi.URLParam(r, "productId"), req.Quantity))
}

// RemoveItem handles DELETE /api/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.respond(w, r, s, s.Cart.RemoveItem(r.Context(), chi.URLParam(r, "productId")))
}

// Clear handles DELETE /api/cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.respond(w, r, s, s.Cart.Clear(r.Context()))
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, s *session.Session, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, s.View().Cart)
}
