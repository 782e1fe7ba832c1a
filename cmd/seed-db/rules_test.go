package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/coupon"
)

func TestParseRules(t *testing.T) {
	rules, err := parseRules([]byte(`[
		{"code":" tenoff ","type":"percentage","value":"10","description":"10% off","maxDiscount":25},
		{"code":"BOGO","type":"free_lowest","minItems":2,"validFrom":"2026-01-01T00:00:00Z","validUntil":null,"extra":[1,2]},
		{"code":"FIVE","type":"fixed","value":5.5,"maxUses":3}
	]`))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "TENOFF", rules[0].Code)
	assert.Equal(t, coupon.DiscountPercentage, rules[0].DiscountType)
	assert.True(t, decimal.NewFromInt(10).Equal(rules[0].Value))
	assert.True(t, decimal.NewFromInt(25).Equal(rules[0].MaxDiscount))
	assert.Equal(t, "10% off", rules[0].Description)

	assert.Equal(t, 2, rules[1].MinItems)
	require.NotNil(t, rules[1].ValidFrom)
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Equal(*rules[1].ValidFrom))
	assert.Nil(t, rules[1].ValidUntil)

	assert.True(t, decimal.RequireFromString("5.5").Equal(rules[2].Value))
	assert.Equal(t, 3, rules[2].MaxUses)
}

func TestParseRules_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"not an array": `{"code":"X"}`,
		"missing code": `[{"type":"fixed","value":1}]`,
		"unknown type": `[{"code":"X","type":"bogus"}]`,
		"bad value":    `[{"code":"X","type":"fixed","value":"abc"}]`,
		"bad time":     `[{"code":"X","type":"fixed","validFrom":"yesterday"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseRules([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestDefaultCoupons(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range defaultCoupons {
		assert.False(t, seen[r.Code], "duplicate %s", r.Code)
		seen[r.Code] = true
		assert.NotEmpty(t, r.Description)
	}
}
