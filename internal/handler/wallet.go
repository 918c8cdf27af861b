package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"shopledger/internal/shop"
)

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	bal, err := h.engine.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Str(bal.UserID) })
		enc.Field("balance_cents", func(enc *jx.Encoder) { enc.Int64(bal.BalanceCents) })
	})
	writeJSON(w, http.StatusOK, &enc)
}

func (h *Handler) addFunds(w http.ResponseWriter, r *http.Request) {
	var req shop.AddFundsRequest
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "user_id":
				req.UserID, err = d.Str()
			case "amount_cents":
				req.AmountCents, err = d.Int64()
			case "source":
				req.Source, err = d.Str()
			case "client_request_id":
				req.ClientRequestID, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		badRequest(w, "malformed JSON body")
		return
	}
	if req.UserID == "" || req.ClientRequestID == "" {
		badRequest(w, "user_id and client_request_id are required")
		return
	}

	res, err := h.engine.AddFunds(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Str(res.UserID) })
		enc.Field("added_cents", func(enc *jx.Encoder) { enc.Int64(res.AddedCents) })
		enc.Field("new_balance_cents", func(enc *jx.Encoder) { enc.Int64(res.NewBalanceCents) })
		enc.Field("tx_id", func(enc *jx.Encoder) { enc.Str(res.TxID) })
	})
	writeJSON(w, http.StatusOK, &enc)
}
