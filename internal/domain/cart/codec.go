package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// EncodeLines serializes lines as a JSON array. Prices are written as
// decimal strings so they survive a round trip exactly.
func EncodeLines(lines []Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID.String())
		e.FieldStart("name")
		e.Str(l.Name)
		if l.Image != "" {
			e.FieldStart("image")
			e.Str(l.Image)
		}
		e.FieldStart("price")
		e.Str(l.Price.String())
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeLines parses the output of EncodeLines. Product ids and prices are
// accepted as JSON strings or numbers; unknown fields are ignored.
func DecodeLines(data []byte) ([]Line, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, errors.New("cart lines: expected array")
	}

	var lines []Line
	if err := d.Arr(func(d *jx.Decoder) error {
		l, err := decodeLine(d)
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart lines")
	}
	return lines, nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var (
		l        Line
		hasID    bool
		hasPrice bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			s, err := scalar(d)
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			l.ProductID = product.ID(s)
			hasID = s != ""
		case "name":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			l.Name = s
		case "image":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "image")
			}
			l.Image = s
		case "price":
			s, err := scalar(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			price, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			l.Price = price
			hasPrice = true
		case "quantity":
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			l.Quantity = n
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return Line{}, err
	}
	if !hasID {
		return Line{}, errors.New("line without productId")
	}
	if !hasPrice {
		return Line{}, errors.Errorf("line %s without price", l.ProductID)
	}
	return l, nil
}

// scalar reads a JSON string or number as its string form.
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
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}
