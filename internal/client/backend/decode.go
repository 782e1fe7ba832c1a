package backend

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// listKeys are the envelope fields the backend may wrap a list in.
var listKeys = []string{"data", "items", "products", "categories"}

// decodeList calls fn for every element of a top level array, or of the
// first array found under one of listKeys when the body is an object.
func decodeList(body string, fn func(d *jx.Decoder) error) error {
	d := jx.DecodeStr(body)
	switch d.Next() {
	case jx.Array:
		return d.Arr(fn)
	case jx.Object:
		found := false
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if found || d.Next() != jx.Array || !isListKey(key) {
				return d.Skip()
			}
			found = true
			return d.Arr(fn)
		}); err != nil {
			return err
		}
		if !found {
			return errors.New("response object has no list field")
		}
		return nil
	default:
		return errors.Errorf("unexpected response type %s", d.Next())
	}
}

func isListKey(key string) bool { return slices.Contains(listKeys, key) }

func decodeProducts(body string) (products []product.RawProduct, skipped int, err error) {
	err = decodeList(body, func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			skipped++
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		p, err := decodeProduct(jx.DecodeBytes(raw))
		if err != nil || p.ID.IsZero() {
			skipped++
			return nil
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "decode products")
	}
	return products, skipped, nil
}

// decodeProduct reads one product object. Fields with an unexpected type are
// left at their zero value.
func decodeProduct(d *jx.Decoder) (product.RawProduct, error) {
	var (
		p          product.RawProduct
		categoryID product.ID
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "_id":
			s, err := scalar(d)
			p.ID = product.ID(s)
			return err
		case "name", "title":
			s, err := scalar(d)
			p.Name = s
			return err
		case "description":
			s, err := scalar(d)
			p.Description = s
			return err
		case "price":
			v, err := decimalValue(d)
			if v != nil {
				p.Price = *v
			}
			return err
		case "new_price", "newPrice":
			v, err := decimalValue(d)
			p.NewPrice = v
			return err
		case "discount":
			v, err := decimalValue(d)
			if v != nil {
				n := int(v.IntPart())
				p.Discount = &n
			}
			return err
		case "stock":
			v, err := decimalValue(d)
			if v != nil {
				p.Stock = int(v.IntPart())
			}
			return err
		case "category":
			c, err := decodeCategoryRef(d)
			if c != nil {
				if p.Category != nil && c.ID.IsZero() {
					c.ID = p.Category.ID
				}
				p.Category = c
			}
			return err
		case "categoryId", "category_id":
			s, err := scalar(d)
			categoryID = product.ID(s)
			return err
		case "attributes":
			attrs, err := decodeAttributes(d)
			p.Attributes = attrs
			return err
		case "image", "image_url", "imageUrl":
			s, err := scalar(d)
			p.Image = s
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return product.RawProduct{}, err
	}
	if !categoryID.IsZero() {
		if p.Category == nil {
			p.Category = &product.RawCategory{}
		}
		if p.Category.ID.IsZero() {
			p.Category.ID = categoryID
		}
	}
	return p, nil
}

// decodeCategoryRef accepts a category object, a bare name or null.
func decodeCategoryRef(d *jx.Decoder) (*product.RawCategory, error) {
	switch d.Next() {
	case jx.Object:
		c, err := decodeCategory(d)
		if err != nil {
			return nil, err
		}
		return &c, nil
	case jx.String:
		s, err := d.Str()
		if err != nil || strings.TrimSpace(s) == "" {
			return nil, err
		}
		return &product.RawCategory{Name: s}, nil
	default:
		return nil, d.Skip()
	}
}

func decodeCategory(d *jx.Decoder) (product.RawCategory, error) {
	var c product.RawCategory
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "_id":
			s, err := scalar(d)
			c.ID = product.ID(s)
			return err
		case "name", "title":
			s, err := scalar(d)
			c.Name = s
			return err
		default:
			return d.Skip()
		}
	})
	return c, err
}

func decodeCategories(body string) ([]product.RawCategory, error) {
	var categories []product.RawCategory
	err := decodeList(body, func(d *jx.Decoder) error {
		c, err := decodeCategoryRef(d)
		if err != nil {
			return err
		}
		if c != nil {
			categories = append(categories, *c)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode categories")
	}
	return categories, nil
}

// decodeAttributes accepts either {"size": "L"} or
// [{"id": "size", "value": "L"}].
func decodeAttributes(d *jx.Decoder) (map[string]string, error) {
	attrs := make(map[string]string)
	switch d.Next() {
	case jx.Object:
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			s, err := scalar(d)
			if err == nil && s != "" {
				attrs[key] = s
			}
			return err
		}); err != nil {
			return nil, err
		}
	case jx.Array:
		if err := d.Arr(func(d *jx.Decoder) error {
			if d.Next() != jx.Object {
				return d.Skip()
			}
			var k, v string
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "id", "name", "key":
					if k == "" {
						k, err = scalar(d)
						return err
					}
					return d.Skip()
				case "value":
					v, err = scalar(d)
					return err
				default:
					return d.Skip()
				}
			}); err != nil {
				return err
			}
			if k != "" && v != "" {
				attrs[k] = v
			}
			return nil
		}); err != nil {
			return nil, err
		}
	default:
		return nil, d.Skip()
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

// decimalValue reads a number or numeric string. Anything else yields nil.
func decimalValue(d *jx.Decoder) (*decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number, jx.String:
		s, err := scalar(d)
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, nil
		}
		return &v, nil
	default:
		return nil, d.Skip()
	}
}

// scalar reads a string, number or boolean as its string form. Null and
// composite values are skipped and read as "".
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return "", err
		}
		if b {
			return "true", nil
		}
		return "false", nil
	default:
		return "", d.Skip()
	}
}

// errorMessage extracts {"message": "..."} or {"error": "..."} from an error
// body, falling back to the HTTP status line.
func errorMessage(body, status string) string {
	msg := ""
	d := jx.DecodeStr(body)
	if d.Next() == jx.Object {
		_ = d.Obj(func(d *jx.Decoder, key string) error {
			if msg == "" && (key == "message" || key == "error") && d.Next() == jx.String {
				s, err := d.Str()
				msg = s
				return err
			}
			return d.Skip()
		})
	}
	if msg == "" {
		return status
	}
	return msg
}
