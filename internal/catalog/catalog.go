// Package catalog is the read side of the product listing: queries, search,
// categories, featured products and product detail.
package catalog

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// DefaultFeaturedCount is the number of products on the home page.
const DefaultFeaturedCount = 4

// ProductBackend is the read side of the remote product resource.
type ProductBackend interface {
	List(ctx context.Context) ([]domain.Product, error)
	Filter(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	Search(ctx context.Context, query string) ([]domain.Product, error)
	ByCategory(ctx context.Context, category string) ([]domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFeaturedCount sets how many products Featured returns.
func WithFeaturedCount(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.featured = n
		}
	}
}

// WithShuffle replaces the shuffle used to pick featured products.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(c *Catalog) { c.shuffle = fn }
}

// Catalog serves product reads for one session. Listing failures never reach
// the caller as errors: they produce an empty list and a notification.
type Catalog struct {
	products ProductBackend
	notifier notify.Notifier
	logger   *slog.Logger
	featured int
	shuffle  func(n int, swap func(i, j int))
}

// New creates a catalog reading from products.
func New(products ProductBackend, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Catalog {
	if notifier == nil {
		notifier = notify.Discard
	}
	c := &Catalog{
		products: products,
		notifier: notifier,
		logger:   logger,
		featured: DefaultFeaturedCount,
		shuffle:  rand.Shuffle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query lists products matching f. An empty filter reads the unfiltered
// listing; any present field goes to the filter endpoint with only the present
// fields. Only an invalid filter returns an error.
func (c *Catalog) Query(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	if err := f.Validate(); err != nil {
		c.notifier.Notify(ctx, notify.Error(err.Error()))
		return nil, apperrors.InvalidInput(err.Error())
	}

	var (
		products []domain.Product
		err      error
	)
	if f.IsEmpty() {
		products, err = c.products.List(ctx)
	} else {
		products, err = c.products.Filter(ctx, f)
	}
	if err != nil {
		return c.failed(ctx, err, notify.MsgProductsLoadFailed, slog.Any("filter", f.Query()))
	}
	return products, nil
}

// Search runs a text search. A blank query is the unfiltered listing.
func (c *Catalog) Search(ctx context.Context, query string) []domain.Product {
	query = strings.TrimSpace(query)
	if query == "" {
		products, _ := c.Query(ctx, domain.ProductFilter{})
		return products
	}
	products, err := c.products.Search(ctx, query)
	if err != nil {
		products, _ = c.failed(ctx, err, notify.MsgSearchFailed, slog.String("query", query))
	}
	return products
}

// ByCategory lists one category.
func (c *Catalog) ByCategory(ctx context.Context, category string) []domain.Product {
	products, err := c.products.ByCategory(ctx, category)
	if err != nil {
		products, _ = c.failed(ctx, err, notify.MsgCategoryLoadFailed, slog.String("category", category))
	}
	return products
}

// Categories lists the distinct categories, empty on failure.
func (c *Catalog) Categories(ctx context.Context) []string {
	categories, err := c.products.Categories(ctx)
	if err != nil {
		c.log(ctx).WarnContext(ctx, "failed to load categories", slog.String("error", err.Error()))
		return []string{}
	}
	return categories
}

// Featured returns a random sample of the catalog.
func (c *Catalog) Featured(ctx context.Context) []domain.Product {
	all, err := c.products.List(ctx)
	if err != nil {
		products, _ := c.failed(ctx, err, notify.MsgProductsLoadFailed)
		return products
	}
	sample := append([]domain.Product(nil), all...)
	c.shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
	if len(sample) > c.featured {
		sample = sample[:c.featured]
	}
	return sample
}

// Product returns one product. Unlike the listings it reports failures,
// since there is nothing to render without the product.
func (c *Catalog) Product(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	p, err := c.products.Get(ctx, id)
	if err != nil {
		c.notifier.Notify(ctx, notify.Error(notify.MsgProductLoadFailed))
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("product", id)
		}
		c.log(ctx).ErrorContext(ctx, "failed to load product", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, err
	}
	return p, nil
}

func (c *Catalog) failed(ctx context.Context, err error, msg string, attrs ...any) ([]domain.Product, error) {
	attrs = append(attrs, slog.String("error", err.Error()))
	c.log(ctx).ErrorContext(ctx, "product query failed", attrs...)
	c.notifier.Notify(ctx, notify.Error(msg))
	return []domain.Product{}, nil
}

func (c *Catalog) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}
