package main

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/coupon"
)

// parseRules decodes a JSON array of coupon rules:
//
//	[{"code":"TENOFF","type":"percentage","value":"10","minItems":0,
//	  "description":"...","validFrom":"2026-01-01T00:00:00Z","validUntil":null,
//	  "maxUses":0,"maxDiscount":"0"}]
func parseRules(data []byte) ([]coupon.Rule, error) {
	var rules []coupon.Rule
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		r, err := parseRule(d)
		if err != nil {
			return errors.Wrapf(err, "rule %d", len(rules))
		}
		rules = append(rules, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func parseRule(d *jx.Decoder) (coupon.Rule, error) {
	var r coupon.Rule
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			var s string
			s, err = d.Str()
			r.Code = strings.ToUpper(strings.TrimSpace(s))
		case "type":
			var s string
			s, err = d.Str()
			r.DiscountType = coupon.DiscountType(s)
		case "value":
			r.Value, err = decimalField(d)
		case "maxDiscount":
			r.MaxDiscount, err = decimalField(d)
		case "minItems":
			r.MinItems, err = d.Int()
		case "maxUses":
			r.MaxUses, err = d.Int()
		case "description":
			r.Description, err = d.Str()
		case "validFrom":
			r.ValidFrom, err = timeField(d)
		case "validUntil":
			r.ValidUntil, err = timeField(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return coupon.Rule{}, err
	}

	if r.Code == "" {
		return coupon.Rule{}, errors.New("code is required")
	}
	switch r.DiscountType {
	case coupon.DiscountPercentage, coupon.DiscountFixed, coupon.DiscountFreeLowest:
	default:
		return coupon.Rule{}, errors.Errorf("%s: unknown discount type %q", r.Code, r.DiscountType)
	}
	return r, nil
}

// decimalField accepts a decimal as a JSON string or number.
func decimalField(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}

func timeField(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
