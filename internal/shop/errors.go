package shop

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for request validation and lookup failures. These are
// terminal for the request that produced them; callers should not retry.
var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrInvalidAmount   = errors.New("amount_cents must be greater than 0")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrInvalidLimit    = errors.New("limit must be between 1 and 50")
)

// ErrBusy indicates the mutation could not acquire its row locks within the
// bounded wait. The transaction was rolled back; retrying with the same
// client request id is safe.
var ErrBusy = errors.New("store busy")

// ErrNotFound is the store-level miss reported by lookup methods. The service
// maps it to ErrUnknownUser / ErrUnknownProduct at the tool surface.
var ErrNotFound = errors.New("not found")

// InsufficientFundsError rejects a purchase whose total exceeds the wallet
// balance. No writes were issued.
type InsufficientFundsError struct {
	NeededCents  int64
	BalanceCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: cost %d cents, balance %d cents", e.NeededCents, e.BalanceCents)
}

// InsufficientInventoryError rejects a purchase exceeding the available
// stock. No writes were issued.
type InsufficientInventoryError struct {
	Requested int64
	Available int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: requested %d, available %d", e.Requested, e.Available)
}
