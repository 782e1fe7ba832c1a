package api

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storefront"
)

// GetCart returns the session cart.
func (h *Handler) GetCart(w http.ResponseWriter, _ *http.Request, s *storefront.Service) {
	writeCart(w, http.StatusOK, s.Cart())
}

// ClearCart empties the session cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	writeCart(w, http.StatusOK, s.Dispatch(r.Context(), cart.ClearCart{}))
}

// AddItem adds one unit of {"productId"} to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	var id product.ID
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "productId" {
			return d.Skip()
		}
		v, err := decodeID(d)
		id = v
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id.IsZero() {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	c, err := s.AddProduct(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// SetQuantity sets the quantity of a cart line from {"quantity"}. Zero or a
// negative quantity removes the line.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	var (
		qty int
		set bool
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		qty, set = v, err == nil
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !set {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	c := s.Dispatch(r.Context(), cart.SetQuantity{
		ProductID: product.ID(r.PathValue("id")),
		Quantity:  qty,
	})
	writeCart(w, http.StatusOK, c)
}

// RemoveItem deletes a cart line. Removing an absent line is not an error.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	c := s.Dispatch(r.Context(), cart.RemoveItem{ProductID: product.ID(r.PathValue("id"))})
	writeCart(w, http.StatusOK, c)
}

// Quote prices {"couponCode"} against the cart without changing it.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	var code string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "couponCode is required")
		return
	}

	q, err := s.Quote(r.Context(), code)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cart")
		encodeCart(e, q.Cart)
		e.FieldStart("couponCode")
		e.Str(q.Discount.Code)
		e.FieldStart("description")
		e.Str(q.Discount.Description)
		e.FieldStart("subtotal")
		encodeDecimal(e, q.Subtotal)
		e.FieldStart("discount")
		encodeDecimal(e, q.Discount.Amount)
		e.FieldStart("total")
		encodeDecimal(e, q.Total)
		e.ObjEnd()
	})
}

func writeCart(w http.ResponseWriter, status int, c cart.Cart) {
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCart(e, c)
	})
}

func encodeCart(e *jx.Encoder, c cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range c.Lines() {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID.String())
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("image")
		e.Str(l.Image)
		e.FieldStart("price")
		encodeDecimal(e, l.Price)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("subtotal")
		encodeDecimal(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeDecimal(e, c.Total())
	e.FieldStart("itemCount")
	e.Int(c.ItemCount())
	e.ObjEnd()
}
