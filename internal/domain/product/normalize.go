package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DietaryFlag names a dietary property derived from product text.
type DietaryFlag string

const (
	Vegan      DietaryFlag = "vegan"
	GlutenFree DietaryFlag = "gluten_free"
)

// ParseDietaryFlag maps a user-facing flag name to a DietaryFlag.
func ParseDietaryFlag(s string) (DietaryFlag, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vegan":
		return Vegan, true
	case "gluten_free", "glutenfree", "gluten-free":
		return GlutenFree, true
	default:
		return "", false
	}
}

// Dietary is the set of dietary flags a product satisfies.
type Dietary struct {
	Vegan      bool
	GlutenFree bool
}

// Has reports whether the flag is set.
func (d Dietary) Has(f DietaryFlag) bool {
	switch f {
	case Vegan:
		return d.Vegan
	case GlutenFree:
		return d.GlutenFree
	default:
		return false
	}
}

// Keywords lists the substrings that mark a product as vegan, gluten free or
// featured. Matching is a heuristic over name and description, not a backend
// field, so the lists are configuration and can grow without code changes.
type Keywords struct {
	Vegan      []string `yaml:"vegan" json:"vegan"`
	GlutenFree []string `yaml:"gluten_free" json:"gluten_free"`
	Featured   []string `yaml:"featured" json:"featured"`
}

// DefaultKeywords returns the keyword lists the storefront ships with.
func DefaultKeywords() Keywords {
	return Keywords{
		Vegan:      []string{"vegan", "vegana", "vegano"},
		GlutenFree: []string{"tacc", "gluten", "celiac", "celíaco", "celiaco"},
		Featured:   []string{"pride", "rainbow", "rainbow-es"},
	}
}

// Normalizer maps raw backend payloads to Products and Categories.
type Normalizer struct {
	vegan      []string
	glutenFree []string
	featured   []string
}

// NewNormalizer creates a Normalizer matching the given keywords. Empty
// lists fall back to DefaultKeywords.
func NewNormalizer(kw Keywords) *Normalizer {
	def := DefaultKeywords()
	if len(kw.Vegan) == 0 {
		kw.Vegan = def.Vegan
	}
	if len(kw.GlutenFree) == 0 {
		kw.GlutenFree = def.GlutenFree
	}
	if len(kw.Featured) == 0 {
		kw.Featured = def.Featured
	}
	return &Normalizer{
		vegan:      lowerAll(kw.Vegan),
		glutenFree: lowerAll(kw.GlutenFree),
		featured:   lowerAll(kw.Featured),
	}
}

// Product normalizes a raw product. It never fails: missing fields get
// defaults and a missing or non-discounting new price means no discount.
func (n *Normalizer) Product(raw RawProduct) Product {
	p := Product{
		ID:            raw.ID,
		Name:          strings.TrimSpace(raw.Name),
		Description:   strings.TrimSpace(raw.Description),
		Category:      DefaultCategory,
		Price:         raw.Price,
		OriginalPrice: raw.Price,
		Stock:         max(raw.Stock, 0),
		Image:         raw.Image,
	}

	if raw.Category != nil {
		p.CategoryID = raw.Category.ID
		if name := strings.ToLower(strings.TrimSpace(raw.Category.Name)); name != "" {
			p.Category = name
		}
	}

	// A zero or negative new price means no discount.
	if raw.NewPrice != nil && raw.NewPrice.IsPositive() && raw.NewPrice.LessThan(raw.Price) {
		p.Price = *raw.NewPrice
		p.DiscountPercent = discountPercent(raw.Price, *raw.NewPrice)
		if raw.Discount != nil {
			p.DiscountPercent = clampPercent(*raw.Discount)
		}
	}

	if len(raw.Attributes) > 0 {
		p.Attributes = make(map[string]string, len(raw.Attributes))
		for k, v := range raw.Attributes {
			p.Attributes[k] = v
		}
	}

	text := strings.ToLower(p.Name + " " + p.Description)
	p.Dietary = Dietary{
		Vegan:      containsAny(text, n.vegan),
		GlutenFree: containsAny(text, n.glutenFree),
	}
	p.Featured = containsAny(text, n.featured)

	return p
}

// Products normalizes a batch of raw products, preserving order.
func (n *Normalizer) Products(raw []RawProduct) []Product {
	out := make([]Product, len(raw))
	for i, r := range raw {
		out[i] = n.Product(r)
	}
	return out
}

// Category normalizes a raw category.
func (n *Normalizer) Category(raw RawCategory) Category {
	name := strings.TrimSpace(raw.Name)
	return Category{
		ID:    raw.ID,
		Name:  name,
		Value: strings.ToLower(name),
	}
}

// Categories normalizes a batch of raw categories, preserving order.
func (n *Normalizer) Categories(raw []RawCategory) []Category {
	out := make([]Category, len(raw))
	for i, r := range raw {
		out[i] = n.Category(r)
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// discountPercent returns the rounded percentage newPrice is below price.
func discountPercent(price, newPrice decimal.Decimal) int {
	if !price.IsPositive() {
		return 0
	}
	pct := price.Sub(newPrice).Mul(hundred).Div(price).Round(0)
	return clampPercent(int(pct.IntPart()))
}

func clampPercent(v int) int {
	return min(max(v, 0), 100)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
