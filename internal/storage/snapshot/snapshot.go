// Package snapshot stores raw catalog payloads in gzip files and serves them
// back as an offline product.Source.
package snapshot

import (
	"context"
	"io"
	"os"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Version is the snapshot format version written by Write.
const Version = 1

// Snapshot is a point-in-time copy of the backend catalog.
type Snapshot struct {
	CreatedAt  time.Time
	Products   []product.RawProduct
	Categories []product.RawCategory
}

// Write encodes s as gzip-compressed JSON.
func Write(w io.Writer, s Snapshot) error {
	gz := pgzip.NewWriter(w)
	if _, err := gz.Write(encode(s)); err != nil {
		_ = gz.Close()
		return errors.Wrap(err, "write")
	}
	return errors.Wrap(gz.Close(), "flush")
}

// WriteFile writes s to path, replacing it only once the write succeeded.
func WriteFile(path string, s Snapshot) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create")
	}
	if err := Write(f, s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "close")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename")
}

// Read decodes a snapshot written by Write.
func Read(r io.Reader) (Snapshot, error) {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	data, err := io.ReadAll(gz)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read")
	}
	return decode(data)
}

// ReadFile reads the snapshot at path.
func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Source serves a loaded snapshot. It ignores sort hints; ordering is left
// to the filter pipeline.
type Source struct {
	snap Snapshot
}

var _ product.Source = (*Source)(nil)

// NewSource wraps an already decoded snapshot.
func NewSource(s Snapshot) *Source {
	return &Source{snap: s}
}

// Open loads the snapshot at path.
func Open(path string) (*Source, error) {
	s, err := ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %s", path)
	}
	return NewSource(s), nil
}

// CreatedAt reports when the snapshot was taken.
func (s *Source) CreatedAt() time.Time { return s.snap.CreatedAt }

func (s *Source) FetchProducts(ctx context.Context, _ string) ([]product.RawProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, &product.NetworkError{Op: "fetch products", Err: err}
	}
	return slices.Clone(s.snap.Products), nil
}

func (s *Source) FetchCategories(ctx context.Context) ([]product.RawCategory, error) {
	if err := ctx.Err(); err != nil {
		return nil, &product.NetworkError{Op: "fetch categories", Err: err}
	}
	return slices.Clone(s.snap.Categories), nil
}

func encode(s Snapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("version")
	e.Int(Version)
	e.FieldStart("createdAt")
	e.Str(s.CreatedAt.UTC().Format(time.RFC3339Nano))

	e.FieldStart("categories")
	e.ArrStart()
	for _, c := range s.Categories {
		encodeCategory(&e, c)
	}
	e.ArrEnd()

	e.FieldStart("products")
	e.ArrStart()
	for _, p := range s.Products {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID.String())
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("description")
		e.Str(p.Description)
		e.FieldStart("price")
		e.Str(p.Price.String())
		if p.NewPrice != nil {
			e.FieldStart("newPrice")
			e.Str(p.NewPrice.String())
		}
		if p.Discount != nil {
			e.FieldStart("discount")
			e.Int(*p.Discount)
		}
		e.FieldStart("stock")
		e.Int(p.Stock)
		if p.Category != nil {
			e.FieldStart("category")
			encodeCategory(&e, *p.Category)
		}
		if len(p.Attributes) > 0 {
			e.FieldStart("attributes")
			e.ObjStart()
			keys := make([]string, 0, len(p.Attributes))
			for k := range p.Attributes {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				e.FieldStart(k)
				e.Str(p.Attributes[k])
			}
			e.ObjEnd()
		}
		if p.Image != "" {
			e.FieldStart("image")
			e.Str(p.Image)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.ObjEnd()
	return e.Bytes()
}

func encodeCategory(e *jx.Encoder, c product.RawCategory) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID.String())
	e.FieldStart("name")
	e.Str(c.Name)
	e.ObjEnd()
}

func decode(data []byte) (Snapshot, error) {
	var (
		s       Snapshot
		version int
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			v, err := d.Int()
			version = v
			return err
		case "createdAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "createdAt")
			}
			s.CreatedAt = t
			return nil
		case "categories":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeCategory(d)
				if err != nil {
					return err
				}
				s.Categories = append(s.Categories, c)
				return nil
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				s.Products = append(s.Products, p)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	if version != Version {
		return Snapshot{}, errors.Errorf("unsupported snapshot version %d", version)
	}
	return s, nil
}

func decodeCategory(d *jx.Decoder) (product.RawCategory, error) {
	var c product.RawCategory
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			c.ID = product.ID(v)
			return err
		case "name":
			v, err := d.Str()
			c.Name = v
			return err
		default:
			return d.Skip()
		}
	})
	return c, err
}

func decodeProduct(d *jx.Decoder) (product.RawProduct, error) {
	var p product.RawProduct
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			p.ID = product.ID(v)
			return err
		case "name":
			v, err := d.Str()
			p.Name = v
			return err
		case "description":
			v, err := d.Str()
			p.Description = v
			return err
		case "price":
			v, err := decimalStr(d)
			p.Price = v
			return errors.Wrap(err, "price")
		case "newPrice":
			v, err := decimalStr(d)
			if err != nil {
				return errors.Wrap(err, "newPrice")
			}
			p.NewPrice = &v
			return nil
		case "discount":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "discount")
			}
			p.Discount = &v
			return nil
		case "stock":
			v, err := d.Int()
			p.Stock = v
			return err
		case "category":
			c, err := decodeCategory(d)
			if err != nil {
				return errors.Wrap(err, "category")
			}
			p.Category = &c
			return nil
		case "attributes":
			p.Attributes = make(map[string]string)
			return d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				p.Attributes[key] = v
				return err
			})
		case "image":
			v, err := d.Str()
			p.Image = v
			return err
		default:
			return d.Skip()
		}
	})
	return p, err
}

func decimalStr(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
