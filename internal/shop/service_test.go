package shop

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
)

// --- In-memory store ---

// memStore implements Store and Tx over plain maps. Mutate holds a single
// mutex for the whole transaction, so writes are serialized exactly like row
// locks would serialize them, and a failed fn restores the pre-tx snapshot.
type memStore struct {
	mu       sync.Mutex
	users    map[string]bool
	wallets  map[string]int64
	products map[string]*product.Product
	orders   []*order.Order
	entries  []*ledger.Entry
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]bool),
		wallets:  make(map[string]int64),
		products: make(map[string]*product.Product),
	}
}

func (m *memStore) addUser(id string, balanceCents int64) {
	m.users[id] = true
	m.wallets[id] = balanceCents
}

func (m *memStore) addProduct(id, name string, priceCents, inventory int64) {
	m.products[id] = &product.Product{ID: id, Name: name, PriceCents: priceCents, Inventory: inventory}
}

func (m *memStore) UserExists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *memStore) WalletBalance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.wallets[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

func (m *memStore) ProductByID(_ context.Context, productID string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ProductsByName(_ context.Context, substr string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(substr)) {
			out = append(out, *p)
		}
	}
	sortProductsByName(out)
	return out, nil
}

func (m *memStore) ProductsByTerms(_ context.Context, terms []string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, p := range m.products {
		name := strings.ToLower(p.Name)
		for _, t := range terms {
			if strings.Contains(name, t) {
				out = append(out, *p)
				break
			}
		}
	}
	sortProductsByName(out)
	return out, nil
}

func (m *memStore) OrdersByUser(_ context.Context, userID string, limit int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for i := len(m.orders) - 1; i >= 0 && len(out) < limit; i-- {
		if m.orders[i].UserID == userID {
			out = append(out, *m.orders[i])
		}
	}
	return out, nil
}

func (m *memStore) OrderByID(_ context.Context, orderID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) LedgerEntryByRequestID(_ context.Context, clientRequestID string) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryByRequestIDLocked(clientRequestID)
}

func (m *memStore) entryByRequestIDLocked(clientRequestID string) (*ledger.Entry, error) {
	for _, e := range m.entries {
		if e.ClientRequestID == clientRequestID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) LedgerByUser(_ context.Context, userID string, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, *m.entries[i])
		}
	}
	return out, nil
}

func (m *memStore) Mutate(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	wallets  map[string]int64
	products map[string]product.Product
	orders   int
	entries  int
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		wallets:  make(map[string]int64, len(m.wallets)),
		products: make(map[string]product.Product, len(m.products)),
		orders:   len(m.orders),
		entries:  len(m.entries),
	}
	for k, v := range m.wallets {
		s.wallets[k] = v
	}
	for k, v := range m.products {
		s.products[k] = *v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	for k, v := range s.wallets {
		m.wallets[k] = v
	}
	for k, v := range s.products {
		cp := v
		m.products[k] = &cp
	}
	m.orders = m.orders[:s.orders]
	m.entries = m.entries[:s.entries]
}

type memTx struct {
	store *memStore
}

func (t *memTx) LockWallet(_ context.Context, userID string) (int64, error) {
	bal, ok := t.store.wallets[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

func (t *memTx) LockProduct(_ context.Context, productID string) (*product.Product, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) LedgerEntryByRequestID(_ context.Context, clientRequestID string) (*ledger.Entry, error) {
	return t.store.entryByRequestIDLocked(clientRequestID)
}

func (t *memTx) UpdateWalletBalance(_ context.Context, userID string, balanceCents int64) error {
	t.store.wallets[userID] = balanceCents
	return nil
}

func (t *memTx) UpdateProductInventory(_ context.Context, productID string, inventory int64) error {
	t.store.products[productID].Inventory = inventory
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	cp := *o
	t.store.orders = append(t.store.orders, &cp)
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *ledger.Entry) error {
	if _, err := t.store.entryByRequestIDLocked(e.ClientRequestID); err == nil {
		return ErrBusy
	}
	cp := *e
	t.store.entries = append(t.store.entries, &cp)
	return nil
}

func sortProductsByName(products []product.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
}

// --- Helpers ---

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	store.addUser("u_1001", 2500)
	store.addUser("u_1002", 1200)
	store.addProduct("p_2001", "USB-C Cable (1m)", 899, 25)
	store.addProduct("p_2012", "Ethernet Cable (2m)", 699, 40)
	store.addProduct("p_2015", "Bluetooth Speaker", 5999, 5)
	return NewService(store), store
}

// --- Balance ---

func TestGetBalance(t *testing.T) {
	svc, _ := newTestService()

	bal, err := svc.GetBalance(context.Background(), "u_1001")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), bal.BalanceCents)
}

func TestGetBalance_UnknownUser(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetBalance(context.Background(), "u_9999")
	require.ErrorIs(t, err, ErrUnknownUser)
}

// --- AddFunds ---

func TestAddFunds(t *testing.T) {
	svc, store := newTestService()

	res, err := svc.AddFunds(context.Background(), AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     1000,
		Source:          "card",
		ClientRequestID: "req-1",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.AddedCents)
	assert.Equal(t, int64(3500), res.NewBalanceCents)
	assert.True(t, strings.HasPrefix(res.TxID, "tx_"))

	entries, err := store.LedgerByUser(context.Background(), "u_1001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindTopup, entries[0].Kind)
	assert.Equal(t, int64(1000), entries[0].AmountCents)
	assert.Equal(t, int64(3500), entries[0].BalanceAfterCents)
	assert.Equal(t, "card", entries[0].Metadata.Source)
}

func TestAddFunds_InvalidAmount(t *testing.T) {
	svc, _ := newTestService()

	for _, amount := range []int64{0, -500} {
		_, err := svc.AddFunds(context.Background(), AddFundsRequest{
			UserID:          "u_1001",
			AmountCents:     amount,
			ClientRequestID: "req-1",
		})
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestAddFunds_UnknownUser(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AddFunds(context.Background(), AddFundsRequest{
		UserID:          "u_9999",
		AmountCents:     100,
		ClientRequestID: "req-1",
	})
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestAddFunds_Idempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	first, err := svc.AddFunds(ctx, AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     1000,
		ClientRequestID: "req-dup",
	})
	require.NoError(t, err)

	// The retried amount is ignored: the recorded outcome wins.
	second, err := svc.AddFunds(ctx, AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     9999,
		ClientRequestID: "req-dup",
	})
	require.NoError(t, err)

	assert.Equal(t, first.TxID, second.TxID)
	assert.Equal(t, int64(1000), second.AddedCents)
	assert.Equal(t, int64(3500), second.NewBalanceCents)

	entries, err := store.LedgerByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddFunds_ReplayReflectsCurrentBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddFunds(ctx, AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     1000,
		ClientRequestID: "req-a",
	})
	require.NoError(t, err)

	_, err = svc.AddFunds(ctx, AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     500,
		ClientRequestID: "req-b",
	})
	require.NoError(t, err)

	// Replaying req-a reports the original amount but today's balance.
	replayed, err := svc.AddFunds(ctx, AddFundsRequest{
		UserID:          "u_1001",
		AmountCents:     1000,
		ClientRequestID: "req-a",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), replayed.AddedCents)
	assert.Equal(t, int64(4000), replayed.NewBalanceCents)
}

// --- Purchase ---

func TestPurchase(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	res, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2001",
		Quantity:        2,
		ClientRequestID: "req-1",
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.OrderID, "o_"))
	assert.Equal(t, int64(899), res.UnitPriceCents)
	assert.Equal(t, int64(1798), res.TotalCents)
	assert.Equal(t, int64(702), res.NewBalanceCents)

	p, err := store.ProductByID(ctx, "p_2001")
	require.NoError(t, err)
	assert.Equal(t, int64(23), p.Inventory)

	orders, err := store.OrdersByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusPlaced, orders[0].Status)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, int64(899), orders[0].Items[0].UnitPriceCents)

	entries, err := store.LedgerByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindPurchase, entries[0].Kind)
	assert.Equal(t, int64(-1798), entries[0].AmountCents)
	assert.Equal(t, int64(702), entries[0].BalanceAfterCents)
	assert.Equal(t, res.OrderID, entries[0].Metadata.OrderID)
	assert.Equal(t, int64(2), entries[0].Metadata.Quantity)
}

func TestPurchase_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService()

	for _, qty := range []int64{0, -1} {
		_, err := svc.Purchase(context.Background(), PurchaseRequest{
			UserID:          "u_1001",
			ProductID:       "p_2001",
			Quantity:        qty,
			ClientRequestID: "req-1",
		})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestPurchase_UnknownProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_9999",
		Quantity:        1,
		ClientRequestID: "req-1",
	})
	require.ErrorIs(t, err, ErrUnknownProduct)
}

func TestPurchase_InsufficientInventory(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2015",
		Quantity:        6,
		ClientRequestID: "req-1",
	})

	var invErr *InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, int64(6), invErr.Requested)
	assert.Equal(t, int64(5), invErr.Available)

	// Nothing changed.
	bal, err := store.WalletBalance(ctx, "u_1001")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), bal)
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2015",
		Quantity:        1,
		ClientRequestID: "req-1",
	})

	var fundsErr *InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, int64(5999), fundsErr.NeededCents)
	assert.Equal(t, int64(2500), fundsErr.BalanceCents)

	// Atomic rollback: inventory untouched, no order, no ledger entry.
	p, err := store.ProductByID(ctx, "p_2015")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Inventory)

	orders, err := store.OrdersByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	assert.Empty(t, orders)

	entries, err := store.LedgerByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPurchase_InventoryCheckedBeforeFunds(t *testing.T) {
	svc, _ := newTestService()

	// Both checks would fail; inventory wins.
	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		UserID:          "u_1002",
		ProductID:       "p_2015",
		Quantity:        100,
		ClientRequestID: "req-1",
	})

	var invErr *InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
}

func TestPurchase_Idempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	first, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2001",
		Quantity:        1,
		ClientRequestID: "req-dup",
	})
	require.NoError(t, err)

	second, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2001",
		Quantity:        1,
		ClientRequestID: "req-dup",
	})
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TotalCents, second.TotalCents)
	assert.Equal(t, first.NewBalanceCents, second.NewBalanceCents)

	p, err := store.ProductByID(ctx, "p_2001")
	require.NoError(t, err)
	assert.Equal(t, int64(24), p.Inventory)

	orders, err := store.OrdersByUser(ctx, "u_1001", 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPurchase_PriceSnapshotSurvivesRepricing(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2001",
		Quantity:        1,
		ClientRequestID: "req-snap",
	})
	require.NoError(t, err)

	store.products["p_2001"].PriceCents = 1299

	replayed, err := svc.Purchase(ctx, PurchaseRequest{
		UserID:          "u_1001",
		ProductID:       "p_2001",
		Quantity:        1,
		ClientRequestID: "req-snap",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(899), replayed.UnitPriceCents)
	assert.Equal(t, int64(899), replayed.TotalCents)
}

func TestPurchase_ConcurrentDistinctRequests(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	store.addUser("u_rich", 1_000_000)

	// 20 workers race for 5 speakers. Exactly 5 succeed, money is conserved.
	var (
		mu        sync.Mutex
		succeeded int
		spent     int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		reqID := "req-race-" + string(rune('a'+i))
		g.Go(func() error {
			res, err := svc.Purchase(gctx, PurchaseRequest{
				UserID:          "u_rich",
				ProductID:       "p_2015",
				Quantity:        1,
				ClientRequestID: reqID,
			})
			if err != nil {
				var invErr *InsufficientInventoryError
				if errors.As(err, &invErr) {
					return nil
				}
				return err
			}
			mu.Lock()
			succeeded++
			spent += res.TotalCents
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, int64(5*5999), spent)

	bal, err := store.WalletBalance(ctx, "u_rich")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000-5*5999), bal)

	p, err := store.ProductByID(ctx, "p_2015")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Inventory)
}

func TestPurchase_ConcurrentSameRequestID(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	// 10 goroutines fire the same request id. One order, one debit.
	results := make([]*PurchaseResult, 10)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := svc.Purchase(gctx, PurchaseRequest{
				UserID:          "u_1001",
				ProductID:       "p_2001",
				Quantity:        1,
				ClientRequestID: "req-same",
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].OrderID, res.OrderID)
	}

	bal, err := store.WalletBalance(ctx, "u_1001")
	require.NoError(t, err)
	assert.Equal(t, int64(2500-899), bal)

	p, err := store.ProductByID(ctx, "p_2001")
	require.NoError(t, err)
	assert.Equal(t, int64(24), p.Inventory)

	entries, err := store.LedgerByUser(ctx, "u_1001", 50)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// --- Search ---

func TestSearchProducts_ExactSubstring(t *testing.T) {
	svc, _ := newTestService()

	products, err := svc.SearchProducts(context.Background(), "cable")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Ethernet Cable (2m)", products[0].Name)
	assert.Equal(t, "USB-C Cable (1m)", products[1].Name)
}

func TestSearchProducts_EmptyQueryReturnsCatalog(t *testing.T) {
	svc, _ := newTestService()

	products, err := svc.SearchProducts(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestSearchProducts_PluralFallback(t *testing.T) {
	svc, _ := newTestService()

	// "ethernet cables" matches nothing verbatim; the word fallback strips
	// the plural and finds the cable.
	products, err := svc.SearchProducts(context.Background(), "ethernet cables")
	require.NoError(t, err)
	require.NotEmpty(t, products)
	assert.Equal(t, "Ethernet Cable (2m)", products[0].Name)
}

func TestSearchProducts_NoMatch(t *testing.T) {
	svc, _ := newTestService()

	products, err := svc.SearchProducts(context.Background(), "quantum flux capacitor")
	require.NoError(t, err)
	assert.Empty(t, products)
}

// --- Orders ---

func TestGetOrders_InvalidLimit(t *testing.T) {
	svc, _ := newTestService()

	for _, limit := range []int{0, -1, 51} {
		_, err := svc.GetOrders(context.Background(), "u_1001", limit)
		require.ErrorIs(t, err, ErrInvalidLimit)
	}
}

func TestGetOrders_NewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i, productID := range []string{"p_2012", "p_2001"} {
		_, err := svc.Purchase(ctx, PurchaseRequest{
			UserID:          "u_1001",
			ProductID:       productID,
			Quantity:        1,
			ClientRequestID: "req-ord-" + string(rune('0'+i)),
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	orders, err := svc.GetOrders(ctx, "u_1001", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "p_2001", orders[0].Items[0].ProductID)
	assert.Equal(t, "p_2012", orders[1].Items[0].ProductID)
}

func TestGetOrders_LimitApplied(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	store.addUser("u_rich", 1_000_000)

	for i := 0; i < 3; i++ {
		_, err := svc.Purchase(ctx, PurchaseRequest{
			UserID:          "u_rich",
			ProductID:       "p_2012",
			Quantity:        1,
			ClientRequestID: "req-lim-" + string(rune('0'+i)),
		})
		require.NoError(t, err)
	}

	orders, err := svc.GetOrders(ctx, "u_rich", 2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

// --- Ledger invariants ---

func TestLedger_BalanceMatchesEntrySum(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.AddFunds(ctx, AddFundsRequest{
		UserID: "u_1001", AmountCents: 5000, ClientRequestID: "req-l1",
	})
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, PurchaseRequest{
		UserID: "u_1001", ProductID: "p_2015", Quantity: 1, ClientRequestID: "req-l2",
	})
	require.NoError(t, err)

	entries, err := store.LedgerByUser(ctx, "u_1001", 50)
	require.NoError(t, err)

	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
	}
	bal, err := store.WalletBalance(ctx, "u_1001")
	require.NoError(t, err)
	assert.Equal(t, bal, sum+2500)
}
