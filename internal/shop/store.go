package shop

import (
	"context"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
)

// Store is the durable state the engine operates on. Lookup methods return
// ErrNotFound on a miss. Reads outside Mutate see normal snapshot
// consistency; all writes happen through Mutate.
type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	WalletBalance(ctx context.Context, userID string) (int64, error)
	ProductByID(ctx context.Context, productID string) (*product.Product, error)
	// ProductsByName returns products whose name contains substr
	// (case-insensitive), ordered by name ascending. An empty substr returns
	// the full catalog.
	ProductsByName(ctx context.Context, substr string) ([]product.Product, error)
	// ProductsByTerms returns products whose name contains any of the given
	// terms (case-insensitive), ordered by name ascending.
	ProductsByTerms(ctx context.Context, terms []string) ([]product.Product, error)
	// OrdersByUser returns the user's most recent orders, newest first, with
	// their items populated.
	OrdersByUser(ctx context.Context, userID string, limit int) ([]order.Order, error)
	OrderByID(ctx context.Context, orderID string) (*order.Order, error)
	// LedgerEntryByRequestID is the idempotency lookup. Implementations may
	// serve a fast negative from an in-memory filter; the database row is
	// authoritative for positives.
	LedgerEntryByRequestID(ctx context.Context, clientRequestID string) (*ledger.Entry, error)
	LedgerByUser(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)

	// Mutate runs fn inside a single transaction. If fn returns an error the
	// transaction is rolled back and no partial effect is observable. A
	// bounded lock wait that expires surfaces as ErrBusy.
	Mutate(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface available inside Mutate. LockWallet must be called
// before LockProduct (fixed lock order, wallet first) so concurrent
// purchases touching overlapping rows cannot deadlock.
type Tx interface {
	// LockWallet takes an exclusive lock on the user's wallet row for the
	// duration of the transaction and returns the current balance.
	LockWallet(ctx context.Context, userID string) (int64, error)
	// LockProduct takes an exclusive lock on the product row and returns the
	// current product state.
	LockProduct(ctx context.Context, productID string) (*product.Product, error)
	// LedgerEntryByRequestID re-checks the idempotency oracle inside the
	// transaction. Called after LockWallet: duplicates for the same user
	// serialize on the wallet lock, so this check is race-free.
	LedgerEntryByRequestID(ctx context.Context, clientRequestID string) (*ledger.Entry, error)
	UpdateWalletBalance(ctx context.Context, userID string, balanceCents int64) error
	UpdateProductInventory(ctx context.Context, productID string, inventory int64) error
	InsertOrder(ctx context.Context, o *order.Order) error
	InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error
}
