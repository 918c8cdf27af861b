package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"shopledger/internal/domain/order"
	"shopledger/internal/shop"
)

const defaultOrdersLimit = 10

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req shop.PurchaseRequest
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "user_id":
				req.UserID, err = d.Str()
			case "product_id":
				req.ProductID, err = d.Str()
			case "quantity":
				req.Quantity, err = d.Int64()
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
	if req.UserID == "" || req.ProductID == "" || req.ClientRequestID == "" {
		badRequest(w, "user_id, product_id and client_request_id are required")
		return
	}

	res, err := h.engine.Purchase(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Str(res.UserID) })
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(res.OrderID) })
		enc.Field("product_id", func(enc *jx.Encoder) { enc.Str(res.ProductID) })
		enc.Field("quantity", func(enc *jx.Encoder) { enc.Int64(res.Quantity) })
		enc.Field("unit_price_cents", func(enc *jx.Encoder) { enc.Int64(res.UnitPriceCents) })
		enc.Field("total_cents", func(enc *jx.Encoder) { enc.Int64(res.TotalCents) })
		enc.Field("new_balance_cents", func(enc *jx.Encoder) { enc.Int64(res.NewBalanceCents) })
	})
	writeJSON(w, http.StatusCreated, &enc)
}

func (h *Handler) getOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	orders, err := h.engine.GetOrders(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("orders", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for i := range orders {
					encodeOrder(enc, &orders[i])
				}
			})
		})
	})
	writeJSON(w, http.StatusOK, &enc)
}

func encodeOrder(enc *jx.Encoder, o *order.Order) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(o.ID) })
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Str(o.UserID) })
		enc.Field("created_at", func(enc *jx.Encoder) { enc.Str(o.CreatedAt.Format(time.RFC3339)) })
		enc.Field("status", func(enc *jx.Encoder) { enc.Str(o.Status) })
		enc.Field("total_cents", func(enc *jx.Encoder) { enc.Int64(o.TotalCents) })
		enc.Field("items", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for _, item := range o.Items {
					enc.Obj(func(enc *jx.Encoder) {
						enc.Field("product_id", func(enc *jx.Encoder) { enc.Str(item.ProductID) })
						enc.Field("name", func(enc *jx.Encoder) { enc.Str(item.Name) })
						enc.Field("quantity", func(enc *jx.Encoder) { enc.Int64(item.Quantity) })
						enc.Field("unit_price_cents", func(enc *jx.Encoder) { enc.Int64(item.UnitPriceCents) })
					})
				}
			})
		})
	})
}
