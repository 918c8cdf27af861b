package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"shopledger/internal/shop"
)

const maxBodyBytes = 1 << 20

// writeJSON sends the encoder's buffer with the given status.
func writeJSON(w http.ResponseWriter, status int, enc *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(enc.Bytes())
}

// writeError maps engine errors onto the HTTP error taxonomy. Validation
// failures are 400, unknown entities 404, business rejections 422, lock
// contention 503 with a retry hint, everything else an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
		msg    string
	)

	var fundsErr *shop.InsufficientFundsError
	var invErr *shop.InsufficientInventoryError

	switch {
	case errors.Is(err, shop.ErrInvalidAmount):
		status, code, msg = http.StatusBadRequest, "invalid_amount", "amount_cents must be a positive integer"
	case errors.Is(err, shop.ErrInvalidQuantity):
		status, code, msg = http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer"
	case errors.Is(err, shop.ErrInvalidLimit):
		status, code, msg = http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 50"
	case errors.Is(err, shop.ErrUnknownUser):
		status, code, msg = http.StatusNotFound, "unknown_user", "user not found"
	case errors.Is(err, shop.ErrUnknownProduct):
		status, code, msg = http.StatusNotFound, "unknown_product", "product not found"
	case errors.As(err, &fundsErr):
		status, code, msg = http.StatusUnprocessableEntity, "insufficient_funds", fundsErr.Error()
	case errors.As(err, &invErr):
		status, code, msg = http.StatusUnprocessableEntity, "insufficient_inventory", invErr.Error()
	case errors.Is(err, shop.ErrBusy):
		w.Header().Set("Retry-After", "1")
		status, code, msg = http.StatusServiceUnavailable, "busy", "resource busy, retry shortly"
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		status, code, msg = http.StatusInternalServerError, "internal", "internal error"
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("error", func(enc *jx.Encoder) { enc.Str(code) })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(msg) })
	})
	writeJSON(w, status, &enc)
}

// decodeBody reads a bounded request body and hands it to parse.
func decodeBody(r *http.Request, parse func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	return parse(jx.DecodeBytes(body))
}

// badRequest reports a malformed request body or parameter.
func badRequest(w http.ResponseWriter, msg string) {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("error", func(enc *jx.Encoder) { enc.Str("bad_request") })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(msg) })
	})
	writeJSON(w, http.StatusBadRequest, &enc)
}
