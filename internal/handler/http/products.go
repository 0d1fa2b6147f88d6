package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ProductHandler handles HTTP requests for catalog browsing.
type ProductHandler struct {
	logger *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(logger *slog.Logger) *ProductHandler {
	return &ProductHandler{logger: logger}
}

// List handles GET /api/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request, s *session.Session) {
	filter, err := domain.ParseProductFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	products, err := s.Catalog.Query(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeListing(w, products)
}

// Search handles GET /api/products/search?q=
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeListing(w, s.Catalog.Search(r.Context(), r.URL.Query().Get("q")))
}

// Categories handles GET /api/products/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeListing(w, s.Catalog.Categories(r.Context()))
}

// Featured handles GET /api/products/featured
func (h *ProductHandler) Featured(w http.ResponseWriter, r *http.Request, s *session.Session) {
	httputil.WriteData(w, http.StatusOK, s.Catalog.Featured(r.Context()))
}

// ByCategory handles GET /api/products/category/{category}
func (h *ProductHandler) ByCategory(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeListing(w, s.Catalog.ByCategory(r.Context(), chi.URLParam(r, "category")))
}

// Get handles GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request, s *session.Session) {
	product, err := s.Catalog.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, product)
}

// writeListing writes a catalog listing. A failed load is served as an empty
// list, so empty listings are never marked cacheable.
func writeListing[T any](w http.ResponseWriter, items []T) {
	if len(items) == 0 {
		middleware.SkipCache(w)
	}
	httputil.WriteData(w, http.StatusOK, items)
}
