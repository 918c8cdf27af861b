// Package handler exposes the shop engine over HTTP. Routes are declared on
// a stdlib mux with method patterns; request and response bodies are JSON
// with all money amounts in integer cents.
package handler

import (
	"context"
	"net/http"

	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
	"shopledger/internal/shop"
)

// Engine is the slice of the shop service the handler needs.
type Engine interface {
	GetBalance(ctx context.Context, userID string) (*shop.Balance, error)
	AddFunds(ctx context.Context, req shop.AddFundsRequest) (*shop.AddFundsResult, error)
	SearchProducts(ctx context.Context, query string) ([]product.Product, error)
	GetProduct(ctx context.Context, productID string) (*product.Product, error)
	Purchase(ctx context.Context, req shop.PurchaseRequest) (*shop.PurchaseResult, error)
	GetOrders(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

// Handler routes HTTP requests to the engine.
type Handler struct {
	engine Engine
}

// NewHandler constructs a Handler over the engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register adds all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/{user_id}/balance", h.getBalance)
	mux.HandleFunc("POST /api/funds", h.addFunds)
	mux.HandleFunc("GET /api/products", h.searchProducts)
	mux.HandleFunc("GET /api/products/{product_id}", h.getProduct)
	mux.HandleFunc("POST /api/orders", h.purchase)
	mux.HandleFunc("GET /api/users/{user_id}/orders", h.getOrders)
}
