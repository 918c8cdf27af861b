// Package user holds the account entities provisioned out-of-band by seeding.
package user

// User is a provisioned account. Users are created by the seed step and are
// never mutated or deleted by the engine.
type User struct {
	ID   string
	Name string
}

// Wallet is the spendable balance attached one-to-one to a User. The balance
// is a materialized view of the user's ledger entries; both change within the
// same transaction.
type Wallet struct {
	UserID       string
	BalanceCents int64
}
