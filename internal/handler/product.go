package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"shopledger/internal/domain/product"
)

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	products, err := h.engine.SearchProducts(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("products", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for i := range products {
					encodeProduct(enc, &products[i])
				}
			})
		})
	})
	writeJSON(w, http.StatusOK, &enc)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("product_id")

	p, err := h.engine.GetProduct(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var enc jx.Encoder
	encodeProduct(&enc, p)
	writeJSON(w, http.StatusOK, &enc)
}

func encodeProduct(enc *jx.Encoder, p *product.Product) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("product_id", func(enc *jx.Encoder) { enc.Str(p.ID) })
		enc.Field("name", func(enc *jx.Encoder) { enc.Str(p.Name) })
		enc.Field("price_cents", func(enc *jx.Encoder) { enc.Int64(p.PriceCents) })
		enc.Field("inventory", func(enc *jx.Encoder) { enc.Int64(p.Inventory) })
	})
}
