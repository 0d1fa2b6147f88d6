package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// CartLine / CartMirror Tests
// ============================================================================

func TestCartLine_Subtotal(t *testing.T) {
	l := CartLine{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")}
	assert.True(t, decimal.RequireFromString("59.97").Equal(l.Subtotal()))
}

func TestNewCartMirror_KeepsServerCountAndTotal(t *testing.T) {
	cart := &Cart{
		UserID: "u-1",
		Items:  []CartLine{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)}},
	}
	// Deliberately inconsistent with the lines: the mirror must not recompute.
	m := NewCartMirror(cart, 7, decimal.RequireFromString("123.45"), time.Now())

	assert.Equal(t, "u-1", m.UserID)
	assert.Equal(t, 7, m.Count)
	assert.Equal(t, "123.45", m.Total.StringFixed(2))
}

func TestNewCartMirror_FoldsDuplicateProducts(t *testing.T) {
	cart := &Cart{Items: []CartLine{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(3)},
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "p3", Quantity: 0, UnitPrice: decimal.NewFromInt(1)},
	}}
	m := NewCartMirror(cart, 4, decimal.NewFromInt(18), time.Now())

	require.Len(t, m.Items, 2)
	assert.Equal(t, "p1", m.Items[0].ProductID)
	assert.Equal(t, 3, m.Items[0].Quantity)
	assert.Equal(t, "p2", m.Items[1].ProductID)
}

func TestNewCartMirror_EmptyCartHasNonNilItems(t *testing.T) {
	m := NewCartMirror(&Cart{UserID: "u-1"}, 0, decimal.Zero, time.Now())
	assert.NotNil(t, m.Items)
	assert.True(t, m.IsEmpty())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items":[]`)
}

func TestCartMirror_CloneIsIndependent(t *testing.T) {
	orig := NewCartMirror(&Cart{Items: []CartLine{{ProductID: "p1", Quantity: 1}}}, 1, decimal.Zero, time.Now())
	c := orig.Clone()
	c.Items[0].Quantity = 9

	assert.Equal(t, 1, orig.Items[0].Quantity)
	assert.Nil(t, (*CartMirror)(nil).Clone())
}

func TestCartMirror_Line(t *testing.T) {
	m := NewCartMirror(&Cart{Items: []CartLine{{ProductID: "p1", Quantity: 4}}}, 4, decimal.Zero, time.Now())

	line, ok := m.Line("p1")
	assert.True(t, ok)
	assert.Equal(t, 4, line.Quantity)

	_, ok = m.Line("missing")
	assert.False(t, ok)

	var nilMirror *CartMirror
	_, ok = nilMirror.Line("p1")
	assert.False(t, ok)
	assert.True(t, nilMirror.IsEmpty())
}

func TestCart_DecodesBackendJSON(t *testing.T) {
	body := `{"userId":"u-1","items":[{"productId":"p1","productName":"Lamp","quantity":2,"price":10.5}],"totalAmount":21.0,"customFields":{}}`

	var c Cart
	require.NoError(t, json.Unmarshal([]byte(body), &c))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "Lamp", c.Items[0].ProductName)
	assert.Equal(t, "10.5", c.Items[0].UnitPrice.String())
	assert.True(t, decimal.NewFromInt(21).Equal(c.TotalAmount))
}
