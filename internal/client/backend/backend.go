// Package backend fetches the catalog from the storefront REST backend.
package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Config configures the backend client.
type Config struct {
	BaseURL    string        `default:"http://localhost:3000/api" usage:"Catalog backend base URL" flag:"backend-url"`
	Timeout    time.Duration `default:"10s" usage:"Per-request timeout"`
	RetryCount int           `default:"2" usage:"Retries for failed requests"`
}

// Client implements product.Source over the backend's JSON API.
type Client struct {
	http *resty.Client
	lg   *zap.Logger
}

var _ product.Source = (*Client)(nil)

// New creates a Client. A nil transport uses http.DefaultTransport.
func New(cfg Config, transport http.RoundTripper, lg *zap.Logger) *Client {
	if lg == nil {
		lg = zap.NewNop()
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json")
	if transport != nil {
		c.SetTransport(transport)
	}
	return &Client{http: c, lg: lg}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// FetchProducts lists the catalog. sortHint is forwarded as the sort query
// parameter when non-empty.
func (c *Client) FetchProducts(ctx context.Context, sortHint string) ([]product.RawProduct, error) {
	const op = "fetch products"

	req := c.http.R().SetContext(ctx)
	if sortHint != "" {
		req.SetQueryParam("sort", sortHint)
	}
	body, err := c.get(ctx, op, req, "/products")
	if err != nil {
		return nil, err
	}

	products, skipped, err := decodeProducts(body)
	if err != nil {
		return nil, &product.NetworkError{Op: op, Err: err}
	}
	if skipped > 0 {
		c.lg.Warn("Skipped malformed products", zap.Int("skipped", skipped), zap.Int("kept", len(products)))
	}
	return products, nil
}

// FetchCategories lists the catalog categories.
func (c *Client) FetchCategories(ctx context.Context) ([]product.RawCategory, error) {
	const op = "fetch categories"

	body, err := c.get(ctx, op, c.http.R().SetContext(ctx), "/categories")
	if err != nil {
		return nil, err
	}

	categories, err := decodeCategories(body)
	if err != nil {
		return nil, &product.NetworkError{Op: op, Err: err}
	}
	return categories, nil
}

// Ping checks that the backend answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", c.http.R().SetContext(ctx), "/categories")
	return err
}

func (c *Client) get(ctx context.Context, op string, req *resty.Request, path string) (string, error) {
	resp, err := req.Get(path)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &product.NetworkError{Op: op, Err: err}
	}
	if resp.IsError() {
		return "", &product.NetworkError{
			Op:     op,
			Status: resp.StatusCode(),
			Err:    errors.New(errorMessage(resp.String(), resp.Status())),
		}
	}
	return resp.String(), nil
}
