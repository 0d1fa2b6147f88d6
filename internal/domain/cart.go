package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product in a cart or order.
type CartLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// Subtotal is the line's unit price times its quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the backend cart resource.
type Cart struct {
	UserID      string          `json:"userId"`
	Items       []CartLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// CartMirror is the local copy of a user's remote cart. Count and Total are
// the values the backend reported, never recomputed locally.
type CartMirror struct {
	UserID    string          `json:"userId"`
	Items     []CartLine      `json:"items"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// NewCartMirror builds a mirror from a fetched cart and the server-reported
// count and total. Lines keep the backend's order; a repeated product ID is
// folded into its first line and lines without a positive quantity are dropped.
func NewCartMirror(cart *Cart, count int, total decimal.Decimal, fetchedAt time.Time) *CartMirror {
	m := &CartMirror{
		Count:     count,
		Total:     total,
		FetchedAt: fetchedAt,
		Items:     []CartLine{},
	}
	if cart == nil {
		return m
	}
	m.UserID = cart.UserID

	index := make(map[string]int, len(cart.Items))
	for _, line := range cart.Items {
		if line.Quantity <= 0 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			m.Items[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(m.Items)
		m.Items = append(m.Items, line)
	}
	return m
}

// EmptyCartMirror is the mirror of a freshly created cart.
func EmptyCartMirror(userID string, fetchedAt time.Time) *CartMirror {
	return &CartMirror{UserID: userID, Items: []CartLine{}, Total: decimal.Zero, FetchedAt: fetchedAt}
}

// Clone returns a deep copy. Cloning nil yields nil.
func (m *CartMirror) Clone() *CartMirror {
	if m == nil {
		return nil
	}
	c := *m
	c.Items = make([]CartLine, len(m.Items))
	copy(c.Items, m.Items)
	return &c
}

// Line returns the line for productID.
func (m *CartMirror) Line(productID string) (CartLine, bool) {
	if m == nil {
		return CartLine{}, false
	}
	for _, l := range m.Items {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// IsEmpty reports whether the mirror is absent or has no lines.
func (m *CartMirror) IsEmpty() bool {
	return m == nil || len(m.Items) == 0
}
