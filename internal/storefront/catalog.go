// Package storefront ties the catalog, cart and session components into the
// operations the API exposes.
package storefront

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/domain/catalog"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

// ErrRefreshSuperseded is returned by Refresh when a later refresh started
// before this one finished. Its result was discarded.
var ErrRefreshSuperseded = errors.New("catalog refresh superseded")

// Catalog holds the latest normalized product and category snapshot shared by
// all sessions.
type Catalog struct {
	src  product.Source
	norm *product.Normalizer
	lg   *zap.Logger
	now  func() time.Time

	gen atomic.Uint64

	mu         sync.RWMutex
	products   []product.Product
	categories []product.Category
	applied    uint64
	updatedAt  time.Time
}

// NewCatalog creates an empty Catalog fed from src.
func NewCatalog(src product.Source, norm *product.Normalizer, lg *zap.Logger) *Catalog {
	if norm == nil {
		norm = product.NewNormalizer(product.DefaultKeywords())
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Catalog{src: src, norm: norm, lg: lg, now: time.Now}
}

// Refresh fetches products and categories concurrently and replaces the
// snapshot. Fetch errors are returned unchanged, so a *product.NetworkError
// reaches the caller as is. If another Refresh starts before this one
// completes, the fetched data is discarded and ErrRefreshSuperseded returned.
func (c *Catalog) Refresh(ctx context.Context, sortHint string) error {
	gen := c.gen.Add(1)

	var (
		rawProducts   []product.RawProduct
		rawCategories []product.RawCategory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawProducts, err = c.src.FetchProducts(gctx, sortHint)
		return err
	})
	g.Go(func() error {
		var err error
		rawCategories, err = c.src.FetchCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	products := c.norm.Products(rawProducts)
	categories := c.norm.Categories(rawCategories)

	c.mu.Lock()
	defer c.mu.Unlock()

	if latest := c.gen.Load(); latest != gen {
		c.lg.Debug("Discarding stale catalog", zap.Uint64("generation", gen), zap.Uint64("latest", latest))
		return ErrRefreshSuperseded
	}
	c.products = products
	c.categories = categories
	c.applied = gen
	c.updatedAt = c.now()

	c.lg.Info("Catalog refreshed",
		zap.Int("products", len(products)),
		zap.Int("categories", len(categories)),
	)
	return nil
}

// Products returns the snapshot filtered and sorted by crit.
func (c *Catalog) Products(crit catalog.Criteria) []product.Product {
	c.mu.RLock()
	products := c.products
	c.mu.RUnlock()

	return catalog.Apply(products, crit)
}

// Product returns the product with the given id or product.ErrNotFound.
func (c *Catalog) Product(id product.ID) (product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.ID.Equal(id) {
			return p, nil
		}
	}
	return product.Product{}, product.ErrNotFound
}

// Categories returns the category snapshot.
func (c *Catalog) Categories() []product.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.categories)
}

// Loaded reports whether a refresh has ever been applied.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.applied > 0
}

// UpdatedAt returns the time of the last applied refresh.
func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.updatedAt
}

// Run refreshes the catalog every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Refresh(ctx, ""); err != nil && ctx.Err() == nil {
				c.lg.Warn("Catalog refresh failed", zap.Error(err))
			}
		}
	}
}
