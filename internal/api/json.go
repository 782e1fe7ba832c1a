package api

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storefront"
)

const (
	timeFormat   = time.RFC3339
	maxBodyBytes = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// writeErr maps domain errors to HTTP responses. Unknown errors are logged
// and reported as 500 without details.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		netErr   *product.NetworkError
		storeErr *storefront.StoreError
	)
	switch {
	case errors.Is(err, storefront.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storefront.ErrOutOfStock),
		errors.Is(err, storefront.ErrRefreshSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storefront.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, storefront.ErrEmptyCart),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &storeErr):
		zctx.From(r.Context()).Warn("Session store failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
	case errors.As(err, &netErr):
		zctx.From(r.Context()).Warn("Catalog backend failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "catalog backend unavailable")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON object body field by field.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errors.New("request body must be a JSON object")
	}
	if err := d.Obj(field); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

// decodeID accepts ids sent as JSON strings or numbers.
func decodeID(d *jx.Decoder) (product.ID, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		return product.ID(s), err
	case jx.Number:
		n, err := d.Num()
		return product.ID(n.String()), err
	default:
		return "", errors.New("id must be a string or number")
	}
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeStringMap(e *jx.Encoder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(m[k])
	}
	e.ObjEnd()
}
