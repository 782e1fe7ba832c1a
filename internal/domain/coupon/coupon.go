// Package coupon prices promotional codes against a cart.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeLowest makes one unit of the cheapest line free.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrInvalidCoupon is returned when a code is unknown or the cart does
	// not meet the rule's minimum item count.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned outside the rule's validity window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when the rule has no uses left.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Rule defines a coupon's discount and eligibility constraints.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinItems     int
	Description  string
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	MaxUses      int
	Uses         int
	// MaxDiscount caps the discount amount; zero means no cap.
	MaxDiscount decimal.Decimal
}

// Discount is the computed discount for a cart.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Repository looks up coupon rules by code. Lookups are case-insensitive and
// return ErrInvalidCoupon for unknown codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
}

// StaticRepository serves a fixed set of rules held in memory.
type StaticRepository struct {
	rules map[string]Rule
}

var _ Repository = (*StaticRepository)(nil)

// NewStaticRepository indexes rules by upper-cased code.
func NewStaticRepository(rules ...Rule) *StaticRepository {
	r := &StaticRepository{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		r.rules[strings.ToUpper(rule.Code)] = rule
	}
	return r
}

// FindByCode returns the rule for code.
func (r *StaticRepository) FindByCode(_ context.Context, code string) (*Rule, error) {
	rule, ok := r.rules[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return &rule, nil
}

// Quoter prices coupon codes against carts.
type Quoter struct {
	repo Repository
	now  func() time.Time
}

// NewQuoter creates a Quoter looking rules up in repo.
func NewQuoter(repo Repository, now func() time.Time) *Quoter {
	if now == nil {
		now = time.Now
	}
	return &Quoter{repo: repo, now: now}
}

// Quote looks up code, checks its validity window and usage limit and
// applies it to c. Quoting does not consume a use.
func (q *Quoter) Quote(ctx context.Context, code string, c cart.Cart) (*Discount, error) {
	rule, err := q.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := q.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	d, err := Apply(rule, c)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
