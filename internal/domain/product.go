package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the backend catalog resource.
type Product struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// SortBy is the ordering accepted by the filtered product listing.
type SortBy string

const (
	SortPriceAsc  SortBy = "price_asc"
	SortPriceDesc SortBy = "price_desc"
	SortNameAsc   SortBy = "name_asc"
	SortNameDesc  SortBy = "name_desc"
)

// Valid reports whether s is one of the known orderings.
func (s SortBy) Valid() bool {
	switch s {
	case SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return true
	}
	return false
}

// ProductFilter describes a product query. Zero-valued fields are absent.
type ProductFilter struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	SortBy   SortBy
}

// IsEmpty reports whether no field is present.
func (f ProductFilter) IsEmpty() bool {
	return f.Category == "" && f.Search == "" && f.MinPrice == nil && f.MaxPrice == nil && f.SortBy == ""
}

// Validate checks the price bounds and ordering.
func (f ProductFilter) Validate() error {
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return fmt.Errorf("minPrice must not be negative")
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		return fmt.Errorf("maxPrice must not be negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return fmt.Errorf("minPrice must not exceed maxPrice")
	}
	if f.SortBy != "" && !f.SortBy.Valid() {
		return fmt.Errorf("sortBy must be one of price_asc, price_desc, name_asc, name_desc")
	}
	return nil
}

// Query serializes exactly the present fields using the backend's parameter names.
func (f ProductFilter) Query() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.MinPrice != nil {
		q.Set("minPrice", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("maxPrice", f.MaxPrice.String())
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.SortBy != "" {
		q.Set("sortBy", string(f.SortBy))
	}
	return q
}

// ParseProductFilter reads a filter from storefront query parameters.
func ParseProductFilter(q url.Values) (ProductFilter, error) {
	f := ProductFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
		SortBy:   SortBy(strings.TrimSpace(q.Get("sortBy"))),
	}
	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"minPrice", &f.MinPrice},
		{"maxPrice", &f.MaxPrice},
	} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ProductFilter{}, fmt.Errorf("%s must be a number", bound.name)
		}
		*bound.dst = &d
	}
	return f, f.Validate()
}

// ProductInput is the admin form for creating or updating a product.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=2000"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Category    string          `json:"category" validate:"required"`
	ImageURL    string          `json:"imageUrl" validate:"omitempty,url"`
}

// ToProduct converts the form into the backend resource.
func (in ProductInput) ToProduct() *Product {
	return &Product{
		Name:        strings.TrimSpace(in.Name),
		Price:       in.Price,
		Description: in.Description,
		Stock:       in.Stock,
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    in.ImageURL,
	}
}
