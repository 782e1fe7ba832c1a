package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart-storefront/internal/storefront"
)

type sessionHandlerFunc func(w http.ResponseWriter, r *http.Request, s *storefront.Service)

// session resolves the storefront session for the request, creating a new
// session id when the client sent none.
func (h *Handler) session(next sessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" {
			id = uuid.NewString()
		}

		s, err := h.registry.Session(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		w.Header().Set(SessionHeader, s.ID())
		next(w, r, s)
	}
}

// GetSession reports the remaining login window.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	remaining := s.RemainingSessionMinutes(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.ID())
		e.FieldStart("remainingMinutes")
		e.Float64(remaining)
		e.FieldStart("expired")
		e.Bool(remaining <= 0)
		e.ObjEnd()
	})
}

// Login starts a new login window for the session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request, s *storefront.Service) {
	at, err := s.Login(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	remaining := s.RemainingSessionMinutes(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.ID())
		e.FieldStart("loginAt")
		e.Str(at.UTC().Format(timeFormat))
		e.FieldStart("remainingMinutes")
		e.Float64(remaining)
		e.ObjEnd()
	})
}
