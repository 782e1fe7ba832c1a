package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/catalog"
	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

var (
	// ErrSessionExpired is returned by operations that need a live login.
	ErrSessionExpired = errors.New("session expired")
	// ErrEmptyCart is returned when quoting an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOutOfStock is returned when adding a product without stock.
	ErrOutOfStock = errors.New("product out of stock")
)

// Quote is a coupon priced against a cart snapshot.
type Quote struct {
	Cart     cart.Cart
	Subtotal decimal.Decimal
	Discount coupon.Discount
	Total    decimal.Decimal
}

// Service is one storefront session: the shared catalog plus the session's
// own cart and login state.
type Service struct {
	id       string
	catalog  *Catalog
	machine  *cart.Machine
	tracker  *session.Tracker
	policy   session.Policy
	quoter   *coupon.Quoter
	now      func() time.Time
	lg       *zap.Logger
	actions  metric.Int64Counter
	detach   func()
	lastUsed atomic.Int64

	closeOnce sync.Once
	// closed is closed once pending cart writes are flushed.
	closed chan struct{}
}

// ID returns the session id.
func (s *Service) ID() string { return s.id }

// FilteredProducts applies crit to the current catalog.
func (s *Service) FilteredProducts(crit catalog.Criteria) []product.Product {
	s.touch()
	return s.catalog.Products(crit)
}

// Categories returns the current categories.
func (s *Service) Categories() []product.Category {
	s.touch()
	return s.catalog.Categories()
}

// Product returns the catalog product with the given id.
func (s *Service) Product(id product.ID) (product.Product, error) {
	s.touch()
	return s.catalog.Product(id)
}

// Refresh reloads the shared catalog. See Catalog.Refresh.
func (s *Service) Refresh(ctx context.Context, sortHint string) error {
	s.touch()
	return s.catalog.Refresh(ctx, sortHint)
}

// CatalogUpdatedAt returns when the shared catalog was last loaded.
func (s *Service) CatalogUpdatedAt() time.Time {
	return s.catalog.UpdatedAt()
}

// Dispatch applies a to the session cart and returns the new state. Cart
// transitions cannot fail.
func (s *Service) Dispatch(ctx context.Context, a cart.Action) cart.Cart {
	s.touch()
	c := s.machine.Dispatch(a)
	if a != nil {
		s.actions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", a.Name())))
	}
	return c
}

// AddProduct adds one unit of the catalog product id to the cart.
func (s *Service) AddProduct(ctx context.Context, id product.ID) (cart.Cart, error) {
	p, err := s.catalog.Product(id)
	if err != nil {
		return cart.Cart{}, err
	}
	if !p.Available() {
		return cart.Cart{}, ErrOutOfStock
	}
	return s.Dispatch(ctx, cart.AddItem{Product: p}), nil
}

// Cart returns the current cart.
func (s *Service) Cart() cart.Cart {
	s.touch()
	return s.machine.Snapshot()
}

// Login records the current time as the session login.
func (s *Service) Login(ctx context.Context) (time.Time, error) {
	s.touch()
	at := s.now()
	if err := s.tracker.MarkLogin(ctx, at); err != nil {
		return time.Time{}, errors.Wrap(err, "login")
	}
	return at, nil
}

// RemainingSessionMinutes returns the minutes left in the login window, or 0
// when nobody is logged in or the login time cannot be read.
func (s *Service) RemainingSessionMinutes(ctx context.Context) float64 {
	s.touch()
	login, ok, err := s.tracker.CurrentLogin(ctx)
	if err != nil {
		s.lg.Warn("Failed to read login time", zap.Error(err))
		return 0
	}
	if !ok {
		return s.policy.RemainingMinutes(nil, s.now())
	}
	return s.policy.RemainingMinutes(&login, s.now())
}

// Quote prices couponCode against the current cart. It requires a live
// session; an expired session keeps its cart but cannot quote.
func (s *Service) Quote(ctx context.Context, couponCode string) (*Quote, error) {
	if s.RemainingSessionMinutes(ctx) <= 0 {
		return nil, ErrSessionExpired
	}
	c := s.machine.Snapshot()
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	d, err := s.quoter.Quote(ctx, couponCode, c)
	if err != nil {
		return nil, err
	}

	subtotal := c.Total()
	return &Quote{
		Cart:     c,
		Subtotal: subtotal,
		Discount: *d,
		Total:    subtotal.Sub(d.Amount),
	}, nil
}

func (s *Service) touch() {
	s.lastUsed.Store(s.now().UnixNano())
}

func (s *Service) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Service) close() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		close(s.closed)
	})
}
