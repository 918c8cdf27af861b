package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
	"shopledger/internal/shop"
)

const (
	lockWalletSQL = `SELECT balance_cents FROM wallets WHERE user_id = $1 FOR UPDATE`

	lockProductSQL = `SELECT product_id, name, price_cents, inventory
		FROM products WHERE product_id = $1 FOR UPDATE`

	updateWalletSQL = `UPDATE wallets SET balance_cents = $2 WHERE user_id = $1`

	updateInventorySQL = `UPDATE products SET inventory = $2 WHERE product_id = $1`

	insertOrderSQL = `INSERT INTO orders (order_id, user_id, created_at, status, total_cents)
		VALUES ($1, $2, $3, $4, $5)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)`

	insertLedgerSQL = `INSERT INTO ledger (tx_id, user_id, kind, amount_cents, balance_after_cents, created_at, client_request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// PostgreSQL error codes that mean a bounded lock wait did not get the lock.
const (
	pgCodeLockNotAvailable = "55P03"
	pgCodeDeadlockDetected = "40P01"
)

// Mutate runs fn in a single transaction with a bounded lock wait. A lock
// wait that exceeds the configured timeout, or a detected deadlock, rolls
// back and surfaces as shop.ErrBusy.
func (s *Store) Mutate(ctx context.Context, fn func(ctx context.Context, tx shop.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// SET LOCAL scopes the timeout to this transaction. lock_timeout does
	// not accept bind parameters.
	setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := pgtx.Exec(ctx, setTimeout); err != nil {
		return errors.Wrap(err, "set lock timeout")
	}

	if err := fn(ctx, &storeTx{tx: pgtx, seen: s.seen}); err != nil {
		return mapBusy(err)
	}

	if err := pgtx.Commit(ctx); err != nil {
		return errors.Wrap(mapBusy(err), "commit")
	}
	return nil
}

// storeTx implements shop.Tx over an open pgx transaction.
type storeTx struct {
	tx   pgx.Tx
	seen *requestFilter
}

func (t *storeTx) LockWallet(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, lockWalletSQL, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shop.ErrNotFound
		}
		return 0, errors.Wrapf(err, "lock wallet %q", userID)
	}
	return balance, nil
}

func (t *storeTx) LockProduct(ctx context.Context, productID string) (*product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "lock product %q", productID)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lock product %q", productID)
	}
	return &p, nil
}

func (t *storeTx) LedgerEntryByRequestID(ctx context.Context, clientRequestID string) (*ledger.Entry, error) {
	return queryLedgerEntry(ctx, t.tx, clientRequestID)
}

func (t *storeTx) UpdateWalletBalance(ctx context.Context, userID string, balanceCents int64) error {
	tag, err := t.tx.Exec(ctx, updateWalletSQL, userID, balanceCents)
	if err != nil {
		return errors.Wrapf(err, "update wallet %q", userID)
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("wallet %q: expected 1 row, got %d", userID, tag.RowsAffected())
	}
	return nil
}

func (t *storeTx) UpdateProductInventory(ctx context.Context, productID string, inventory int64) error {
	tag, err := t.tx.Exec(ctx, updateInventorySQL, productID, inventory)
	if err != nil {
		return errors.Wrapf(err, "update inventory %q", productID)
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("product %q: expected 1 row, got %d", productID, tag.RowsAffected())
	}
	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.CreatedAt, o.Status, o.TotalCents,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	for _, item := range o.Items {
		_, err := t.tx.Exec(ctx, insertOrderItemSQL,
			o.ID, item.ProductID, item.Quantity, item.UnitPriceCents,
		)
		if err != nil {
			return errors.Wrapf(err, "insert item for order %q", o.ID)
		}
	}
	return nil
}

func (t *storeTx) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	_, err := t.tx.Exec(ctx, insertLedgerSQL,
		e.TxID, e.UserID, e.Kind, e.AmountCents, e.BalanceAfterCents,
		e.CreatedAt, e.ClientRequestID, e.Metadata.Encode(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert ledger entry %q", e.TxID)
	}

	// Recording before commit is fine: a rollback leaves a harmless false
	// positive, which the SQL lookup resolves.
	t.seen.Add(e.ClientRequestID)
	return nil
}

// mapBusy converts lock-wait and deadlock failures into shop.ErrBusy so
// callers can retry; everything else passes through.
func mapBusy(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeLockNotAvailable, pgCodeDeadlockDetected:
			return shop.ErrBusy
		}
	}
	return err
}
