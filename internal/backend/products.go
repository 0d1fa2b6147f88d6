package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/storefront/internal/domain"
)

const productsService = "products"

// Products is the /products resource.
type Products struct {
	t *transport
}

func (p *Products) list(ctx context.Context, path string, q url.Values) ([]domain.Product, error) {
	products := []domain.Product{}
	if err := p.t.call(ctx, productsService, http.MethodGet, path, q, nil, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// List returns the unfiltered catalog.
func (p *Products) List(ctx context.Context) ([]domain.Product, error) {
	return p.list(ctx, "/products", nil)
}

// Filter queries /products/filter with exactly the present filter fields.
func (p *Products) Filter(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	return p.list(ctx, "/products/filter", f.Query())
}

// Search runs a text search.
func (p *Products) Search(ctx context.Context, query string) ([]domain.Product, error) {
	return p.list(ctx, "/products/search", url.Values{"query": {query}})
}

// ByCategory lists the products of a category.
func (p *Products) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return p.list(ctx, "/products/category/"+seg(category), nil)
}

// Categories lists the distinct product categories.
func (p *Products) Categories(ctx context.Context) ([]string, error) {
	categories := []string{}
	if err := p.t.call(ctx, productsService, http.MethodGet, "/products/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

// Get fetches one product.
func (p *Products) Get(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := p.t.call(ctx, productsService, http.MethodGet, "/products/"+seg(id), nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Create adds a product to the catalog.
func (p *Products) Create(ctx context.Context, in *domain.Product) (*domain.Product, error) {
	var product domain.Product
	if err := p.t.call(ctx, productsService, http.MethodPost, "/products", nil, in, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Update replaces a product.
func (p *Products) Update(ctx context.Context, id string, in *domain.Product) (*domain.Product, error) {
	var product domain.Product
	if err := p.t.call(ctx, productsService, http.MethodPut, "/products/"+seg(id), nil, in, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Delete removes a product.
func (p *Products) Delete(ctx context.Context, id string) error {
	return p.t.call(ctx, productsService, http.MethodDelete, "/products/"+seg(id), nil, nil, nil)
}

// UpdateStock adjusts stock by quantity, which may be negative.
func (p *Products) UpdateStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	var product domain.Product
	q := url.Values{"quantity": {strconv.Itoa(quantity)}}
	if err := p.t.call(ctx, productsService, http.MethodPatch, "/products/"+seg(id)+"/stock", q, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
