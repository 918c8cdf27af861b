package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
	"shopledger/internal/shop"
)

const (
	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`

	walletBalanceSQL = `SELECT balance_cents FROM wallets WHERE user_id = $1`

	getProductSQL = `SELECT product_id, name, price_cents, inventory
		FROM products WHERE product_id = $1`

	productsByNameSQL = `SELECT product_id, name, price_cents, inventory
		FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY name`

	productsByTermsSQL = `SELECT product_id, name, price_cents, inventory
		FROM products WHERE name ILIKE ANY($1) ORDER BY name`

	ordersByUserSQL = `SELECT order_id, user_id, created_at, status, total_cents
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, order_id DESC LIMIT $2`

	orderByIDSQL = `SELECT order_id, user_id, created_at, status, total_cents
		FROM orders WHERE order_id = $1`

	orderItemsSQL = `SELECT i.order_id, i.product_id, p.name, i.quantity, i.unit_price_cents
		FROM order_items i JOIN products p ON p.product_id = i.product_id
		WHERE i.order_id = ANY($1)`

	ledgerByRequestIDSQL = `SELECT tx_id, user_id, kind, amount_cents, balance_after_cents, created_at, client_request_id, metadata
		FROM ledger WHERE client_request_id = $1`

	ledgerByUserSQL = `SELECT tx_id, user_id, kind, amount_cents, balance_after_cents, created_at, client_request_id, metadata
		FROM ledger WHERE user_id = $1 ORDER BY created_at DESC, tx_id DESC LIMIT $2`
)

const defaultLockTimeout = 2 * time.Second

var _ shop.Store = (*Store)(nil)

// Store implements shop.Store backed by PostgreSQL. The replay filter keeps
// a bloom set of seen client request ids so the common case (a fresh
// request id) skips the idempotency SELECT before the transaction; the
// in-transaction lookup remains authoritative.
type Store struct {
	pool        *pgxpool.Pool
	seen        *requestFilter
	lockTimeout time.Duration
}

// NewStore creates a Store over the pool. A zero lockTimeout selects the
// default of two seconds.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{
		pool:        pool,
		seen:        newRequestFilter(),
		lockTimeout: lockTimeout,
	}
}

// WarmReplayFilter loads every recorded client request id into the replay
// filter. Call once at startup, after migrations.
func (s *Store) WarmReplayFilter(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT client_request_id FROM ledger`)
	if err != nil {
		return errors.Wrap(err, "load request ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return errors.Wrap(err, "collect request ids")
	}
	for _, id := range ids {
		s.seen.Add(id)
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, userExistsSQL, userID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check user %q", userID)
	}
	return exists, nil
}

func (s *Store) WalletBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, walletBalanceSQL, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shop.ErrNotFound
		}
		return 0, errors.Wrapf(err, "read wallet %q", userID)
	}
	return balance, nil
}

func (s *Store) ProductByID(ctx context.Context, productID string) (*product.Product, error) {
	rows, err := s.pool.Query(ctx, getProductSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", productID)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", productID)
	}
	return &p, nil
}

func (s *Store) ProductsByName(ctx context.Context, substr string) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, productsByNameSQL, escapeLike(substr))
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (s *Store) ProductsByTerms(ctx context.Context, terms []string) ([]product.Product, error) {
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + escapeLike(t) + "%"
	}

	rows, err := s.pool.Query(ctx, productsByTermsSQL, patterns)
	if err != nil {
		return nil, errors.Wrap(err, "search products by terms")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (s *Store) OrdersByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, ordersByUserSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) OrderByID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, orderByIDSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}

	orders := []order.Order{o}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) LedgerEntryByRequestID(ctx context.Context, clientRequestID string) (*ledger.Entry, error) {
	// A negative from the filter is definitive for entries written through
	// this process; entries written elsewhere are caught by the
	// in-transaction lookup.
	if !s.seen.MayContain(clientRequestID) {
		return nil, shop.ErrNotFound
	}
	return queryLedgerEntry(ctx, s.pool, clientRequestID)
}

func (s *Store) LedgerByUser(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, ledgerByUserSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list ledger for %q", userID)
	}
	return pgx.CollectRows(rows, scanLedgerEntry)
}

// attachItems loads the items for the given orders in one query and fills
// each order's Items slice in place.
func (s *Store) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := s.pool.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    order.Item
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPriceCents); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLedgerEntry(ctx context.Context, q querier, clientRequestID string) (*ledger.Entry, error) {
	rows, err := q.Query(ctx, ledgerByRequestIDSQL, clientRequestID)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup request %q", clientRequestID)
	}

	e, err := pgx.CollectExactlyOneRow(rows, scanLedgerEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lookup request %q", clientRequestID)
	}
	return &e, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Inventory)
	return p, err
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.CreatedAt, &o.Status, &o.TotalCents)
	return o, err
}

func scanLedgerEntry(row pgx.CollectableRow) (ledger.Entry, error) {
	var (
		e    ledger.Entry
		meta []byte
	)
	err := row.Scan(&e.TxID, &e.UserID, &e.Kind, &e.AmountCents, &e.BalanceAfterCents,
		&e.CreatedAt, &e.ClientRequestID, &meta)
	if err != nil {
		return e, err
	}
	e.Metadata, err = ledger.DecodeMetadata(meta)
	return e, err
}

// escapeLike neutralizes LIKE wildcards in user input so a query for "100%"
// matches the literal text.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
