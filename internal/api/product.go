package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/catalog"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storefront"
)

const attrPrefix = "attr."

// ListProducts returns the catalog filtered by the query:
// category, dietary (comma separated), attr.<name> and sort.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	crit, err := parseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	products := s.FilteredProducts(crit)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	p, err := s.Product(product.ID(r.PathValue("id")))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

// ListCategories returns the catalog categories.
func (h *Handler) ListCategories(w http.ResponseWriter, _ *http.Request, s *storefront.Service) {
	categories := s.Categories()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range categories {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(c.ID.String())
			e.FieldStart("name")
			e.Str(c.Name)
			e.FieldStart("value")
			e.Str(c.Value)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// RefreshCatalog refetches the catalog from its source. The optional sort
// query parameter is forwarded to the backend as a hint.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	if err := s.Refresh(r.Context(), r.URL.Query().Get("sort")); err != nil {
		writeErr(w, r, err)
		return
	}
	updated := s.CatalogUpdatedAt()
	count := len(s.FilteredProducts(catalog.DefaultCriteria()))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.Int(count)
		e.FieldStart("updatedAt")
		e.Str(updated.UTC().Format(timeFormat))
		e.ObjEnd()
	})
}

func parseCriteria(q url.Values) (catalog.Criteria, error) {
	crit := catalog.DefaultCriteria()
	if v := q.Get("category"); v != "" {
		crit = crit.WithCategory(product.ID(v))
	}
	for _, raw := range q["dietary"] {
		for _, name := range strings.Split(raw, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			flag, ok := product.ParseDietaryFlag(name)
			if !ok {
				return catalog.Criteria{}, errors.Errorf("unknown dietary flag %q", name)
			}
			crit = crit.WithDietary(flag, true)
		}
	}
	for key, values := range q {
		name, ok := strings.CutPrefix(key, attrPrefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		crit = crit.WithAttribute(name, values[0])
	}
	crit = crit.WithSort(catalog.ParseSortOrder(q.Get("sort")))
	return crit, nil
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID.String())
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("categoryId")
	if p.CategoryID.IsZero() {
		e.Null()
	} else {
		e.Str(p.CategoryID.String())
	}
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("originalPrice")
	encodeDecimal(e, p.OriginalPrice)
	e.FieldStart("discountPercent")
	e.Int(p.DiscountPercent)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("available")
	e.Bool(p.Available())
	e.FieldStart("vegan")
	e.Bool(p.Dietary.Vegan)
	e.FieldStart("glutenFree")
	e.Bool(p.Dietary.GlutenFree)
	e.FieldStart("featured")
	e.Bool(p.Featured)
	e.FieldStart("attributes")
	encodeStringMap(e, p.Attributes)
	e.FieldStart("image")
	e.Str(p.Image)
	e.ObjEnd()
}
