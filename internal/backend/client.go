// Package backend is the typed client of the remote storefront backend.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client groups the backend resources. All calls are single attempts.
type Client struct {
	Carts    *Carts
	Products *Products
	Orders   *Orders
	Users    *Users

	base *transport
}

// New creates a backend client rooted at baseURL, e.g. http://localhost:8080/api.
func New(baseURL string, doer HTTPDoer, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	t := &transport{base: u, doer: doer, logger: logger}
	return &Client{
		Carts:    &Carts{t: t},
		Products: &Products{t: t},
		Orders:   &Orders{t: t},
		Users:    &Users{t: t},
		base:     t,
	}, nil
}

// Ping checks that the backend answers. It lists the product categories,
// the cheapest read the backend offers.
func (c *Client) Ping(ctx context.Context) error {
	return c.base.call(ctx, "products", http.MethodGet, "/products/categories", nil, nil, nil)
}

type transport struct {
	base   *url.URL
	doer   HTTPDoer
	logger *slog.Logger
}

// endpoint appends an already escaped path and the encoded query to the base URL.
func (t *transport) endpoint(path string, query url.Values) string {
	s := t.base.String() + path
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

// call performs one request. Network failures become remote errors, non-2xx
// responses are parsed into application errors and a 2xx body is decoded into
// out when out is non-nil.
func (t *transport) call(ctx context.Context, service, method, path string, query url.Values, body, out any) error {
	req, err := httpclient.NewJSONRequest(ctx, method, t.endpoint(path, query), body)
	if err != nil {
		return apperrors.Internal(err)
	}

	resp, err := t.doer.Do(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		t.logger.WarnContext(ctx, "backend call failed",
			slog.String("service", service),
			slog.String("method", method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return apperrors.Remote(service, err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, service)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Remote(service, fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

// seg escapes a single path segment.
func seg(s string) string {
	return url.PathEscape(s)
}
