package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestWithIdentity_RoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u-1", "ADMIN")
	assert.Equal(t, "u-1", UserIDFromContext(ctx))
	assert.Equal(t, "ADMIN", RoleFromContext(ctx))

	assert.Empty(t, UserIDFromContext(context.Background()))
	assert.Empty(t, RoleFromContext(context.Background()))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"bearer header", "Bearer abc.def", "", "abc.def"},
		{"lowercase scheme", "bearer xyz", "", "xyz"},
		{"header wins over cookie", "Bearer from-header", "from-cookie", "from-header"},
		{"cookie only", "", "from-cookie", "from-cookie"},
		{"other scheme", "Basic dXNlcjpwYXNz", "from-cookie", ""},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "storefront_session", Value: tt.cookie})
			}
			assert.Equal(t, tt.want, BearerToken(req, "storefront_session"))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	handler := RequireAuth()(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_SIGNED_IN")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	handler.ServeHTTP(rec, req.WithContext(WithIdentity(req.Context(), "u-1", "CUSTOMER")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("ADMIN")(okHandler)

	tests := []struct {
		name   string
		userID string
		role   string
		want   int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"customer", "u-1", "CUSTOMER", http.StatusForbidden},
		{"admin", "u-2", "ADMIN", http.StatusOK},
		{"admin lowercase", "u-3", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			if tt.userID != "" {
				req = req.WithContext(WithIdentity(req.Context(), tt.userID, tt.role))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCacheControl(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		handler http.HandlerFunc
		want    string
	}{
		{"successful get", http.MethodGet, okHandler, "private, max-age=60"},
		{"implicit 200 on write", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{}"))
		}, "private, max-age=60"},
		{"post untouched", http.MethodPost, okHandler, "no-store"},
		{"error untouched", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, "no-store"},
		{"skipped by handler", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			SkipCache(w)
			w.WriteHeader(http.StatusOK)
		}, "no-store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NoStore()(CacheControl(60)(tt.handler))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/products/categories", nil))
			assert.Equal(t, tt.want, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestSkipCache_OutsideCacheControlIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	SkipCache(rec)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore()(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
