package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// RouterConfig holds what the storefront router needs.
type RouterConfig struct {
	Sessions  *session.Manager
	Health    *health.Handler
	Cookie    CookieConfig
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig

	// CatalogMaxAge is how long clients may cache catalog listings and
	// product details. Zero disables caching.
	CatalogMaxAge time.Duration
}

// NewRouter creates a chi router with every storefront route registered.
// ctx bounds the background work of the rate limiter.
func NewRouter(ctx context.Context, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RateLimit(ctx, cfg.RateLimit, logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing())

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	sessions := NewSessionHandler(cfg.Sessions, cfg.Cookie, logger)
	cart := NewCartHandler(logger)
	products := NewProductHandler(logger)
	checkout := NewCheckoutHandler(logger)
	orders := NewOrderHandler(logger)
	admin := NewAdminHandler(logger)
	with := func(fn func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
		return requireSession(logger, fn)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore())
		r.Use(SessionResolver(cfg.Sessions, cfg.Cookie, logger))
		r.Use(middleware.RequestLogger(logger))

		r.Get("/session", sessions.Get)
		r.Post("/session/login", sessions.Login)
		r.Post("/session/register", sessions.Register)
		r.Post("/session/logout", sessions.Logout)
		r.With(middleware.RequireAuth()).Put("/session/profile", sessions.UpdateProfile)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", with(cart.Get))
			r.Delete("/", with(cart.Clear))
			r.Get("/events", with(cart.Events))
			r.Post("/refresh", with(cart.Refresh))
			r.Post("/items", with(cart.AddItem))
			r.Put("/items/{productId}", with(cart.UpdateItem))
			r.Delete("/items/{productId}", with(cart.RemoveItem))
		})

		r.Route("/products", func(r chi.Router) {
			// Featured products are a fresh pick on every request.
			r.Get("/featured", with(products.Featured))

			r.Group(func(r chi.Router) {
				if maxAge := int(cfg.CatalogMaxAge / time.Second); maxAge > 0 {
					r.Use(middleware.CacheControl(maxAge))
				}
				r.Get("/", with(products.List))
				r.Get("/search", with(products.Search))
				r.Get("/categories", with(products.Categories))
				r.Get("/category/{category}", with(products.ByCategory))
				r.Get("/{id}", with(products.Get))
			})
		})

		r.With(middleware.RequireAuth()).Get("/checkout/summary", with(checkout.Summary))
		// Placing an order checks the principal itself so that an anonymous
		// attempt is also reported to the visitor's inbox.
		r.Post("/checkout", with(checkout.PlaceOrder))

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.RequireAuth())
			r.Get("/", with(orders.List))
			r.Get("/stats", with(orders.Stats))
			r.Get("/{id}", with(orders.Get))
		})

		r.Get("/notifications", with(Notifications))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(domain.RoleAdmin)))

			r.Get("/orders", with(admin.Orders))
			r.Patch("/orders/{id}/status", with(admin.UpdateOrderStatus))
			r.Delete("/orders/{id}", with(admin.CancelOrder))

			r.Get("/users", with(admin.Users))
			r.Post("/users", with(admin.CreateUser))
			r.Get("/users/{id}", with(admin.User))
			r.Put("/users/{id}", with(admin.UpdateUser))
			r.Delete("/users/{id}", with(admin.DeleteUser))

			r.Post("/products", with(admin.CreateProduct))
			r.Put("/products/{id}", with(admin.UpdateProduct))
			r.Delete("/products/{id}", with(admin.DeleteProduct))
			r.Patch("/products/{id}/stock", with(admin.UpdateStock))
		})
	})

	return r
}
