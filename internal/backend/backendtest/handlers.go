package backendtest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// --- carts ---

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, copyCart(c))
}

func (s *Server) createCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := chi.URLParam(r, "userID")
	c := &domain.Cart{UserID: userID, Items: []domain.CartLine{}, TotalAmount: decimal.Zero}
	s.carts[userID] = c
	writeJSON(w, http.StatusOK, copyCart(c))
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := chi.URLParam(r, "userID")
	productID := r.URL.Query().Get("productId")
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || qty <= 0 {
		writeError(w, r, http.StatusBadRequest, "Quantity must be greater than zero.")
		return
	}
	p := s.findProduct(productID)
	if p == nil {
		writeError(w, r, http.StatusBadRequest, "Product not found: "+productID)
		return
	}

	c, ok := s.carts[userID]
	if !ok {
		c = &domain.Cart{UserID: userID, Items: []domain.CartLine{}}
		s.carts[userID] = c
	}
	merged := false
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		c.Items = append(c.Items, domain.CartLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    qty,
			UnitPrice:   p.Price,
		})
	}
	recomputeCart(c)
	writeJSON(w, http.StatusOK, copyCart(c))
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Cart not found")
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || qty < 0 {
		writeError(w, r, http.StatusBadRequest, "Quantity cannot be negative.")
		return
	}
	productID := chi.URLParam(r, "productID")
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if qty == 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = qty
		}
		break
	}
	recomputeCart(c)
	writeJSON(w, http.StatusOK, copyCart(c))
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Cart not found")
		return
	}
	productID := chi.URLParam(r, "productID")
	kept := c.Items[:0]
	for _, l := range c.Items {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	c.Items = kept
	recomputeCart(c)
	writeJSON(w, http.StatusOK, copyCart(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Cart not found")
		return
	}
	c.Items = []domain.CartLine{}
	recomputeCart(c)
	writeJSON(w, http.StatusOK, copyCart(c))
}

// cartSize reports the number of units in the cart.
func (s *Server) cartSize(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Cart not found")
		return
	}
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) cartTotal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[chi.URLParam(r, "userID")]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Cart not found")
		return
	}
	writeNumber(w, c.TotalAmount)
}

// --- products ---

func (s *Server) findProduct(id string) *domain.Product {
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) productsWhere(keep func(*domain.Product) bool) []domain.Product {
	out := []domain.Product{}
	for _, p := range s.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.productsWhere(func(*domain.Product) bool { return true }))
}

func (s *Server) filterProducts(w http.ResponseWriter, r *http.Request) {
	f, err := domain.ParseProductFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.productsWhere(func(p *domain.Product) bool {
		if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
			return false
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			return false
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			return false
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			return false
		}
		return true
	})

	switch f.SortBy {
	case domain.SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case domain.SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case domain.SortNameAsc:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	case domain.SortNameDesc:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) > strings.ToLower(out[j].Name) })
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("query"))
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.productsWhere(func(p *domain.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q)
	}))
}

func (s *Server) productsByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.productsWhere(func(p *domain.Product) bool {
		return strings.EqualFold(p.Category, category)
	}))
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{})
	for _, p := range s.products {
		if p.Category != "" {
			set[p.Category] = struct{}{}
		}
	}
	writeJSON(w, http.StatusOK, sortedKeys(set))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findProduct(chi.URLParam(r, "id"))
	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID("p")
	s.products = append(s.products, &p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in domain.Product
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findProduct(chi.URLParam(r, "id"))
	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	in.ID = p.ID
	*p = in
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for i, p := range s.products {
		if p.ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) updateStock(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "quantity must be an integer")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findProduct(chi.URLParam(r, "id"))
	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	p.Stock += qty
	writeJSON(w, http.StatusOK, p)
}

// --- orders ---

func (s *Server) ordersWhere(keep func(*domain.Order) bool) []domain.Order {
	out := []domain.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	return out
}

func (s *Server) findOrder(id string) (int, *domain.Order) {
	for i, o := range s.orders {
		if o.ID == id {
			return i, o
		}
	}
	return -1, nil
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.ordersWhere(func(*domain.Order) bool { return true }))
}

func (s *Server) ordersByStatus(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.ordersWhere(func(o *domain.Order) bool {
		return strings.EqualFold(string(o.Status), status)
	}))
}

func (s *Server) ordersByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.ordersWhere(func(o *domain.Order) bool { return o.UserID == userID }))
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok || len(c.Items) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	o := &domain.Order{
		ID:          s.nextID("o"),
		UserID:      userID,
		Items:       append([]domain.CartLine{}, c.Items...),
		TotalAmount: c.TotalAmount,
		Status:      domain.OrderPending,
		CreatedAt:   domain.Timestamp{Time: time.Now().UTC()},
	}
	s.orders = append(s.orders, o)
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) orderCount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, len(s.ordersWhere(func(o *domain.Order) bool { return o.UserID == userID })))
}

func (s *Server) totalSpent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, o := range s.orders {
		if o.UserID == userID && o.Status != domain.OrderCancelled {
			total = total.Add(o.TotalAmount)
		}
	}
	writeNumber(w, total)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, o := s.findOrder(chi.URLParam(r, "id"))
	if o == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, o := s.findOrder(chi.URLParam(r, "id"))
	if o == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.orders = append(s.orders[:i], s.orders[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, r, http.StatusBadRequest, "Order status cannot be null or empty.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, o := s.findOrder(chi.URLParam(r, "id"))
	if o == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	o.Status = domain.OrderStatus(status)
	writeJSON(w, http.StatusOK, o)
}

// --- users ---

func (s *Server) findUser(match func(*domain.User) bool) (int, *domain.User) {
	for i, u := range s.users {
		if match(u) {
			return i, u
		}
	}
	return -1, nil
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, match func(*domain.User) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, u := s.findUser(match)
	if u == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.writeUser(w, r, func(u *domain.User) bool { return u.ID == id })
}

func (s *Server) userByUsername(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "username")
	s.writeUser(w, r, func(u *domain.User) bool { return u.Username == name })
}

func (s *Server) userByEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	s.writeUser(w, r, func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var u domain.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, existing := s.findUser(func(x *domain.User) bool { return x.Username == u.Username }); existing != nil {
		writeError(w, r, http.StatusBadRequest, "Username already exists")
		return
	}
	u.ID = s.nextID("u")
	s.users = append(s.users, &u)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var in domain.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	_, u := s.findUser(func(x *domain.User) bool { return x.ID == id })
	if u == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if in.Password == "" {
		in.Password = u.Password
	}
	in.ID = u.ID
	*u = in
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i, u := s.findUser(func(x *domain.User) bool { return x.ID == id })
	if u == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.users = append(s.users[:i], s.users[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds map[string]*string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	username, password := creds["username"], creds["password"]
	if username == nil || password == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, u := s.findUser(func(x *domain.User) bool {
		return x.Username == *username && x.Password == *password
	})
	if u == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
