// Package ledger defines the append-only audit trail of every completed
// mutation. The ledger is ground truth: a user's wallet balance always equals
// the sum of their entry amounts, and the unique client request id on each
// entry is the idempotency oracle for retried requests.
package ledger

import "time"

// Kind classifies a ledger entry.
type Kind string

const (
	KindTopup    Kind = "TOPUP"
	KindPurchase Kind = "PURCHASE"
)

// Entry is a single immutable ledger record. AmountCents is signed: positive
// for credits (top-ups), negative for debits (purchases).
type Entry struct {
	TxID              string
	UserID            string
	Kind              Kind
	AmountCents       int64
	BalanceAfterCents int64
	CreatedAt         time.Time
	ClientRequestID   string
	Metadata          Metadata
}

// Metadata is the opaque structured payload attached to an entry. Top-ups
// record the funding source; purchases record the resulting order.
type Metadata struct {
	Source    string
	OrderID   string
	ProductID string
	Quantity  int64
}
