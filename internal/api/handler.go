// Package api exposes the storefront over JSON HTTP.
package api

import (
	"net/http"

	"github.com/xenking/kart-storefront/internal/storefront"
)

// SessionHeader carries the storefront session id. Requests without one get
// a fresh id, which is echoed back on every response.
const SessionHeader = "X-Storefront-Session"

// Handler serves the storefront routes under /api.
type Handler struct {
	registry *storefront.Registry
}

// NewHandler constructs a Handler over the session registry.
func NewHandler(registry *storefront.Registry) *Handler {
	return &Handler{registry: registry}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.session(h.ListProducts))
	mux.HandleFunc("GET /api/products/{id}", h.session(h.GetProduct))
	mux.HandleFunc("GET /api/categories", h.session(h.ListCategories))
	mux.HandleFunc("POST /api/catalog/refresh", h.session(h.RefreshCatalog))

	mux.HandleFunc("GET /api/cart", h.session(h.GetCart))
	mux.HandleFunc("DELETE /api/cart", h.session(h.ClearCart))
	mux.HandleFunc("POST /api/cart/items", h.session(h.AddItem))
	mux.HandleFunc("PUT /api/cart/items/{id}", h.session(h.SetQuantity))
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.session(h.RemoveItem))
	mux.HandleFunc("POST /api/cart/quote", h.session(h.Quote))

	mux.HandleFunc("GET /api/session", h.session(h.GetSession))
	mux.HandleFunc("POST /api/session/login", h.session(h.Login))
}

// Routes returns a mux serving only the API routes.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
