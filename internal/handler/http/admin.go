package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
)

// AdminHandler handles the back-office endpoints. Routes are mounted behind
// an admin role guard and the console checks the role again.
type AdminHandler struct {
	logger *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(logger *slog.Logger) *AdminHandler {
	return &AdminHandler{logger: logger}
}

// --- Request DTOs ---

// UpdateStatusRequest is the JSON body for changing an order's status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStockRequest is the JSON body for adjusting stock.
type UpdateStockRequest struct {
	Quantity int `json:"quantity"`
}

// --- Orders ---

// Orders handles GET /api/admin/orders?status=&page=&per_page=
func (h *AdminHandler) Orders(w http.ResponseWriter, r *http.Request, s *session.Session) {
	result, err := s.Admin.Orders(r.Context(), r.URL.Query().Get("status"), pagination.FromRequest(r))
	h.respond(w, r, http.StatusOK, result, err)
}

// UpdateOrderStatus handles PATCH /api/admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := s.Admin.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	h.respond(w, r, http.StatusOK, order, err)
}

// CancelOrder handles DELETE /api/admin/orders/{id}
func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.noContent(w, r, s.Admin.CancelOrder(r.Context(), chi.URLParam(r, "id")))
}

// --- Users ---

// Users handles GET /api/admin/users
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request, s *session.Session) {
	result, err := s.Admin.Users(r.Context(), pagination.FromRequest(r))
	h.respond(w, r, http.StatusOK, result, err)
}

// User handles GET /api/admin/users/{id}
func (h *AdminHandler) User(w http.ResponseWriter, r *http.Request, s *session.Session) {
	user, err := s.Admin.User(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, user, err)
}

// CreateUser handles POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var in domain.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := s.Admin.CreateUser(r.Context(), in)
	h.respond(w, r, http.StatusCreated, user, err)
}

// UpdateUser handles PUT /api/admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var in domain.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := s.Admin.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, r, http.StatusOK, user, err)
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.noContent(w, r, s.Admin.DeleteUser(r.Context(), chi.URLParam(r, "id")))
}

// --- Products ---

// CreateProduct handles POST /api/admin/products
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var in domain.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	product, err := s.Admin.CreateProduct(r.Context(), in)
	h.respond(w, r, http.StatusCreated, product, err)
}

// UpdateProduct handles PUT /api/admin/products/{id}
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var in domain.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	product, err := s.Admin.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, r, http.StatusOK, product, err)
}

// DeleteProduct handles DELETE /api/admin/products/{id}
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.noContent(w, r, s.Admin.DeleteProduct(r.Context(), chi.URLParam(r, "id")))
}

// UpdateStock handles PATCH /api/admin/products/{id}/stock
func (h *AdminHandler) UpdateStock(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req UpdateStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.Admin.UpdateStock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	h.respond(w, r, http.StatusOK, product, err)
}

func (h *AdminHandler) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, status, data)
}

func (h *AdminHandler) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
