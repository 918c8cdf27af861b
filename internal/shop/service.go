package shop

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
)

// Service implements the six engine operations over a Store. It is safe for
// concurrent use; serialization of conflicting mutations is delegated to the
// store's row locks.
type Service struct {
	store Store
}

// NewService creates the engine over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetBalance returns the user's current wallet balance.
func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	bal, err := s.store.WalletBalance(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "read balance for %s", userID)
	}

	return &Balance{UserID: userID, BalanceCents: bal}, nil
}

// GetProduct returns a single catalog item.
func (s *Service) GetProduct(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.store.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	return p, nil
}

// SearchProducts returns catalog items matching the query, ordered by name.
// An empty query returns the full catalog. When the exact substring match
// finds nothing, the search falls back to an OR-match over the query's
// individual words with naive plural stripping.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]product.Product, error) {
	query = strings.TrimSpace(query)

	products, err := s.store.ProductsByName(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	if len(products) > 0 || query == "" {
		return products, nil
	}

	terms := SearchTerms(query)
	if len(terms) == 0 {
		return products, nil
	}

	products, err = s.store.ProductsByTerms(ctx, terms)
	if err != nil {
		return nil, errors.Wrap(err, "search products by terms")
	}
	return products, nil
}

// GetOrders returns the user's most recent orders, newest first, each with
// its items. Limit must be in 1..50.
func (s *Service) GetOrders(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	if limit < 1 || limit > 50 {
		return nil, ErrInvalidLimit
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	orders, err := s.store.OrdersByUser(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %s", userID)
	}
	return orders, nil
}

// AddFunds credits the user's wallet. The first call with a given client
// request id applies the credit and appends a TOPUP ledger entry in one
// transaction; any repeat returns the original outcome against the current
// balance without touching the wallet.
func (s *Service) AddFunds(ctx context.Context, req AddFundsRequest) (*AddFundsResult, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.ensureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	// Fast path: already applied.
	if existing, err := s.store.LedgerEntryByRequestID(ctx, req.ClientRequestID); err == nil {
		return s.replayAddFunds(ctx, req.UserID, existing)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "idempotency lookup")
	}

	var (
		result *AddFundsResult
		replay *ledger.Entry
	)
	err := s.store.Mutate(ctx, func(ctx context.Context, tx Tx) error {
		bal, err := tx.LockWallet(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "lock wallet")
		}

		// Re-check under the wallet lock: a concurrent duplicate either
		// committed before we acquired the lock (visible here) or is queued
		// behind us.
		if existing, err := tx.LedgerEntryByRequestID(ctx, req.ClientRequestID); err == nil {
			replay = existing
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "idempotency lookup")
		}

		newBal := bal + req.AmountCents
		if err := tx.UpdateWalletBalance(ctx, req.UserID, newBal); err != nil {
			return errors.Wrap(err, "update balance")
		}

		entry := &ledger.Entry{
			TxID:              newTxID(),
			UserID:            req.UserID,
			Kind:              ledger.KindTopup,
			AmountCents:       req.AmountCents,
			BalanceAfterCents: newBal,
			CreatedAt:         time.Now().UTC(),
			ClientRequestID:   req.ClientRequestID,
			Metadata:          ledger.Metadata{Source: req.Source},
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return errors.Wrap(err, "insert ledger entry")
		}

		result = &AddFundsResult{
			UserID:          req.UserID,
			AddedCents:      req.AmountCents,
			NewBalanceCents: newBal,
			TxID:            entry.TxID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return s.replayAddFunds(ctx, req.UserID, replay)
	}
	return result, nil
}

// Purchase buys a quantity of one product: decrement stock, debit the
// wallet, create the order with a price snapshot, and append a PURCHASE
// ledger entry, all in one transaction, idempotent under the client request
// id. Validation failures roll back without any observable effect.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.ensureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	// Fast path: already applied.
	if existing, err := s.store.LedgerEntryByRequestID(ctx, req.ClientRequestID); err == nil {
		return s.replayPurchase(ctx, req.UserID, existing)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "idempotency lookup")
	}

	var (
		result *PurchaseResult
		replay *ledger.Entry
	)
	err := s.store.Mutate(ctx, func(ctx context.Context, tx Tx) error {
		// Lock order is fixed: wallet first, then product. Concurrent
		// purchases touching overlapping rows serialize instead of
		// deadlocking.
		bal, err := tx.LockWallet(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "lock wallet")
		}

		if existing, err := tx.LedgerEntryByRequestID(ctx, req.ClientRequestID); err == nil {
			replay = existing
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "idempotency lookup")
		}

		p, err := tx.LockProduct(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnknownProduct
			}
			return errors.Wrap(err, "lock product")
		}

		if p.Inventory < req.Quantity {
			return &InsufficientInventoryError{Requested: req.Quantity, Available: p.Inventory}
		}

		total := p.PriceCents * req.Quantity
		if bal < total {
			return &InsufficientFundsError{NeededCents: total, BalanceCents: bal}
		}

		newBal := bal - total
		if err := tx.UpdateWalletBalance(ctx, req.UserID, newBal); err != nil {
			return errors.Wrap(err, "update balance")
		}
		if err := tx.UpdateProductInventory(ctx, req.ProductID, p.Inventory-req.Quantity); err != nil {
			return errors.Wrap(err, "update inventory")
		}

		now := time.Now().UTC()
		o := &order.Order{
			ID:         newOrderID(),
			UserID:     req.UserID,
			CreatedAt:  now,
			Status:     order.StatusPlaced,
			TotalCents: total,
			Items: []order.Item{{
				ProductID:      p.ID,
				Name:           p.Name,
				Quantity:       req.Quantity,
				UnitPriceCents: p.PriceCents,
			}},
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		entry := &ledger.Entry{
			TxID:              newTxID(),
			UserID:            req.UserID,
			Kind:              ledger.KindPurchase,
			AmountCents:       -total,
			BalanceAfterCents: newBal,
			CreatedAt:         now,
			ClientRequestID:   req.ClientRequestID,
			Metadata: ledger.Metadata{
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  req.Quantity,
			},
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return errors.Wrap(err, "insert ledger entry")
		}

		result = &PurchaseResult{
			UserID:          req.UserID,
			OrderID:         o.ID,
			ProductID:       p.ID,
			Quantity:        req.Quantity,
			UnitPriceCents:  p.PriceCents,
			TotalCents:      total,
			NewBalanceCents: newBal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return s.replayPurchase(ctx, req.UserID, replay)
	}
	return result, nil
}

// replayAddFunds rebuilds a top-up response from the recorded ledger entry.
// AddedCents is the originally recorded amount; the balance is read fresh
// and already includes the credit.
func (s *Service) replayAddFunds(ctx context.Context, userID string, entry *ledger.Entry) (*AddFundsResult, error) {
	bal, err := s.store.WalletBalance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read balance for replay")
	}
	return &AddFundsResult{
		UserID:          userID,
		AddedCents:      entry.AmountCents,
		NewBalanceCents: bal,
		TxID:            entry.TxID,
	}, nil
}

// replayPurchase rebuilds a purchase response from the recorded order and
// its single item, plus the current wallet balance.
func (s *Service) replayPurchase(ctx context.Context, userID string, entry *ledger.Entry) (*PurchaseResult, error) {
	if entry.Metadata.OrderID == "" {
		return nil, errors.New("replayed purchase entry has no order_id metadata")
	}

	o, err := s.store.OrderByID(ctx, entry.Metadata.OrderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load order %s for replay", entry.Metadata.OrderID)
	}
	if len(o.Items) == 0 {
		return nil, errors.Errorf("order %s has no items", o.ID)
	}

	bal, err := s.store.WalletBalance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read balance for replay")
	}

	item := o.Items[0]
	return &PurchaseResult{
		UserID:          userID,
		OrderID:         o.ID,
		ProductID:       item.ProductID,
		Quantity:        item.Quantity,
		UnitPriceCents:  item.UnitPriceCents,
		TotalCents:      o.TotalCents,
		NewBalanceCents: bal,
	}, nil
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "check user %s", userID)
	}
	if !ok {
		return ErrUnknownUser
	}
	return nil
}
