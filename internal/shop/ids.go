package shop

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// newTxID returns a ledger transaction id like "tx_9f86d081884c7d65...".
func newTxID() string {
	u := uuid.New()
	return "tx_" + hex.EncodeToString(u[:])
}

// newOrderID returns a short order id like "o_9f86d08188".
func newOrderID() string {
	u := uuid.New()
	return "o_" + hex.EncodeToString(u[:])[:10]
}
