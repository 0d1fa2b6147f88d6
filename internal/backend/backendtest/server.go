// Package backendtest provides an in-memory fake of the storefront backend
// that records every call it receives.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// Call is one request received by the fake.
type Call struct {
	Method string
	Path   string
	Query  url.Values
}

func (c Call) String() string {
	if len(c.Query) == 0 {
		return c.Method + " " + c.Path
	}
	return c.Method + " " + c.Path + "?" + c.Query.Encode()
}

// Server is a fake backend rooted at URL().
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	calls     []Call
	failures  map[string]int
	onRequest func(Call)
	seq       int
	products  []*domain.Product
	users     []*domain.User
	orders    []*domain.Order
	carts     map[string]*domain.Cart
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		failures: make(map[string]int),
		carts:    make(map[string]*domain.Cart),
	}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the backend base URL including the /api prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Close stops the server. Requests made afterwards fail at the network level.
func (s *Server) Close() {
	s.srv.Close()
}

// Calls returns a copy of every call received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallLines returns the received calls as "METHOD /path" strings, without query.
func (s *Server) CallLines() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method + " " + c.Path
	}
	return out
}

// CallCount counts calls with the given method and exact path.
func (s *Server) CallCount(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Fail makes every request matching method and path (without the /api
// prefix) answer status until Recover is called.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Recover removes an injected failure.
func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// OnRequest installs fn to run for every call after it is recorded and before
// it is served. fn runs without holding the server lock, so it may block.
func (s *Server) OnRequest(fn func(Call)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = fn
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return prefix + "-" + strconv.Itoa(s.seq)
}

// SeedProduct stores p, assigning an ID when it has none.
func (s *Server) SeedProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextID("p")
	}
	cp := p
	s.products = append(s.products, &cp)
	return p
}

// SeedUser stores u, assigning an ID when it has none.
func (s *Server) SeedUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID("u")
	}
	if u.Role == "" {
		u.Role = domain.RoleCustomer
	}
	cp := u
	s.users = append(s.users, &cp)
	return u
}

// SeedCart replaces the user's cart with lines.
func (s *Server) SeedCart(userID string, lines ...domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := &domain.Cart{UserID: userID, Items: append([]domain.CartLine{}, lines...)}
	recomputeCart(cart)
	s.carts[userID] = cart
}

// SeedOrder stores o, assigning an ID and creation time when missing.
func (s *Server) SeedOrder(o domain.Order) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = s.nextID("o")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = domain.Timestamp{Time: time.Now().UTC()}
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	cp := o
	s.orders = append(s.orders, &cp)
	return o
}

// Cart returns a copy of the user's cart.
func (s *Server) Cart(userID string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, false
	}
	return copyCart(c), true
}

// Orders returns a copy of every stored order.
func (s *Server) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = *o
	}
	return out
}

// Product returns a copy of a stored product.
func (s *Server) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findProduct(id); p != nil {
		return *p, true
	}
	return domain.Product{}, false
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/api", func(r chi.Router) {
		r.Route("/carts/{userID}", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Post("/", s.createCart)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addItem)
			r.Put("/items/{productID}", s.updateItem)
			r.Delete("/items/{productID}", s.removeItem)
			r.Get("/size", s.cartSize)
			r.Get("/total", s.cartTotal)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Get("/filter", s.filterProducts)
			r.Get("/search", s.searchProducts)
			r.Get("/categories", s.categories)
			r.Get("/category/{category}", s.productsByCategory)
			r.Get("/{id}", s.getProduct)
			r.Put("/{id}", s.updateProduct)
			r.Delete("/{id}", s.deleteProduct)
			r.Patch("/{id}/stock", s.updateStock)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Get("/status/{status}", s.ordersByStatus)
			r.Get("/user/{userID}", s.ordersByUser)
			r.Post("/user/{userID}", s.createOrder)
			r.Get("/user/{userID}/count", s.orderCount)
			r.Get("/user/{userID}/total-spent", s.totalSpent)
			r.Get("/{id}", s.getOrder)
			r.Delete("/{id}", s.cancelOrder)
			r.Patch("/{id}/status", s.updateOrderStatus)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Post("/", s.createUser)
			r.Post("/login", s.login)
			r.Get("/username/{username}", s.userByUsername)
			r.Get("/email/{email}", s.userByEmail)
			r.Get("/{id}", s.getUser)
			r.Put("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})
	})
	return r
}

// record stores the call, runs the OnRequest hook and applies injected failures.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		call := Call{Method: r.Method, Path: path, Query: r.URL.Query()}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		hook := s.onRequest
		status, failing := s.failures[r.Method+" "+path]
		s.mu.Unlock()

		if hook != nil {
			hook(call)
		}
		if failing {
			writeError(w, r, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeNumber writes a bare JSON number the way the backend serializes
// scalar results.
func writeNumber(w http.ResponseWriter, d decimal.Decimal) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, d.String())
}

// writeError mimics the framework's default error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    status,
		"error":     http.StatusText(status),
		"message":   message,
		"path":      r.URL.Path,
	})
}

func copyCart(c *domain.Cart) domain.Cart {
	out := *c
	out.Items = append([]domain.CartLine{}, c.Items...)
	return out
}

func recomputeCart(c *domain.Cart) {
	total := decimal.Zero
	for _, l := range c.Items {
		total = total.Add(l.Subtotal())
	}
	c.TotalAmount = total
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
