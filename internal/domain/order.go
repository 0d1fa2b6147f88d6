package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the backend's order lifecycle state.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// StatusFilterAll selects orders of every status in admin listings.
const StatusFilterAll = "ALL"

// OrderStatuses lists the statuses an admin may assign.
var OrderStatuses = []OrderStatus{OrderPending, OrderShipped, OrderDelivered, OrderCancelled}

// ParseOrderStatus matches s case-insensitively against the known statuses.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range OrderStatuses {
		if st == candidate {
			return st, true
		}
	}
	return "", false
}

// Order is the backend order resource.
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Items       []CartLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   Timestamp       `json:"createdAt"`
}

// ItemCount is the number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Items {
		n += l.Quantity
	}
	return n
}

// OrderStats summarizes a user's order history as reported by the backend.
type OrderStats struct {
	Count      int             `json:"count"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
}
