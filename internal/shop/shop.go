// Package shop implements the transactional wallet and inventory engine: six
// operations over a durable store, where the two mutating operations
// (AddFunds, Purchase) are atomic and idempotent under a caller-supplied
// client request id. Front ends (the HTTP handler, the rule-based chat
// agent, the audit CLI) reach the data only through this surface.
package shop

// Balance is the result of GetBalance.
type Balance struct {
	UserID       string
	BalanceCents int64
}

// AddFundsRequest tops up a wallet. ClientRequestID is the idempotency key:
// a repeat with the same id returns the original outcome without re-applying
// the credit.
type AddFundsRequest struct {
	UserID          string
	AmountCents     int64
	Source          string
	ClientRequestID string
}

// AddFundsResult reports a completed (or replayed) top-up. AddedCents is the
// originally recorded amount; NewBalanceCents is the wallet balance as of
// this call.
type AddFundsResult struct {
	UserID          string
	AddedCents      int64
	NewBalanceCents int64
	TxID            string
}

// PurchaseRequest buys Quantity units of one product. ClientRequestID is the
// idempotency key; a repeat returns the original order without debiting the
// wallet or decrementing stock again.
type PurchaseRequest struct {
	UserID          string
	ProductID       string
	Quantity        int64
	ClientRequestID string
}

// PurchaseResult reports a completed (or replayed) purchase.
type PurchaseResult struct {
	UserID          string
	OrderID         string
	ProductID       string
	Quantity        int64
	UnitPriceCents  int64
	TotalCents      int64
	NewBalanceCents int64
}
