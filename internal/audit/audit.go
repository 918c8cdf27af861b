// Package audit renders database ground truth for a user: wallet balance,
// recent ledger entries and recent orders with their items. It reads through
// the same store the engine writes, so it doubles as a consistency check
// after demos and load tests.
package audit

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"shopledger/internal/domain/ledger"
	"shopledger/internal/domain/order"
	"shopledger/internal/shop"
)

const (
	defaultLedgerLimit = 20
	defaultOrderLimit  = 10
)

// Reader is the read slice of the store the auditor needs. shop.Store
// satisfies it.
type Reader interface {
	WalletBalance(ctx context.Context, userID string) (int64, error)
	LedgerByUser(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)
	OrdersByUser(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

// Auditor builds user audit reports.
type Auditor struct {
	reader      Reader
	ledgerLimit int
	orderLimit  int
}

// New creates an Auditor with the default section limits.
func New(reader Reader) *Auditor {
	return &Auditor{
		reader:      reader,
		ledgerLimit: defaultLedgerLimit,
		orderLimit:  defaultOrderLimit,
	}
}

// Report is the collected audit state for one user.
type Report struct {
	UserID       string
	BalanceCents int64
	Ledger       []ledger.Entry
	Orders       []order.Order
}

// Collect reads the user's wallet, ledger tail and order tail.
func (a *Auditor) Collect(ctx context.Context, userID string) (*Report, error) {
	balance, err := a.reader.WalletBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, shop.ErrNotFound) {
			return nil, errors.Errorf("no wallet found for user %s", userID)
		}
		return nil, errors.Wrap(err, "read wallet")
	}

	entries, err := a.reader.LedgerByUser(ctx, userID, a.ledgerLimit)
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}

	orders, err := a.reader.OrdersByUser(ctx, userID, a.orderLimit)
	if err != nil {
		return nil, errors.Wrap(err, "read orders")
	}

	return &Report{
		UserID:       userID,
		BalanceCents: balance,
		Ledger:       entries,
		Orders:       orders,
	}, nil
}

// Render formats the report as the human-readable audit text.
func (r *Report) Render() string {
	var sb strings.Builder

	sb.WriteString("=== DB AUDIT (SOURCE OF TRUTH) ===\n")
	fmt.Fprintf(&sb, "User: %s\n", r.UserID)
	fmt.Fprintf(&sb, "Wallet balance: %s\n\n", money(r.BalanceCents))

	fmt.Fprintf(&sb, "--- Ledger (last %d) ---\n", len(r.Ledger))
	if len(r.Ledger) == 0 {
		sb.WriteString("(no ledger entries)\n")
	}
	for _, e := range r.Ledger {
		sign := "+"
		if e.AmountCents < 0 {
			sign = "-"
		}
		amount := e.AmountCents
		if amount < 0 {
			amount = -amount
		}
		fmt.Fprintf(&sb, "%s | %s %s%s | bal_after %s | %s | %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind,
			sign, money(amount), money(e.BalanceAfterCents),
			e.Metadata.Source, e.ClientRequestID)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "--- Orders (last %d) ---\n", len(r.Orders))
	if len(r.Orders) == 0 {
		sb.WriteString("(no orders)\n")
	}
	for _, o := range r.Orders {
		fmt.Fprintf(&sb, "%s | %s | %s | total %s\n",
			o.ID, o.Status, o.CreatedAt.Format("2006-01-02 15:04:05"), money(o.TotalCents))
		for _, item := range o.Items {
			fmt.Fprintf(&sb, "  - %s x%d @ %s\n", item.Name, item.Quantity, money(item.UnitPriceCents))
		}
	}

	return sb.String()
}

// ExportJSONL writes the report's ledger entries as gzip-compressed JSON
// lines, one entry per line, suitable for offline analysis.
func (r *Report) ExportJSONL(w io.Writer) error {
	gz := pgzip.NewWriter(w)

	var enc jx.Encoder
	for _, e := range r.Ledger {
		enc.Reset()
		enc.Obj(func(enc *jx.Encoder) {
			enc.Field("tx_id", func(enc *jx.Encoder) { enc.Str(e.TxID) })
			enc.Field("user_id", func(enc *jx.Encoder) { enc.Str(e.UserID) })
			enc.Field("kind", func(enc *jx.Encoder) { enc.Str(string(e.Kind)) })
			enc.Field("amount_cents", func(enc *jx.Encoder) { enc.Int64(e.AmountCents) })
			enc.Field("balance_after_cents", func(enc *jx.Encoder) { enc.Int64(e.BalanceAfterCents) })
			enc.Field("created_at", func(enc *jx.Encoder) { enc.Str(e.CreatedAt.Format("2006-01-02T15:04:05Z07:00")) })
			enc.Field("client_request_id", func(enc *jx.Encoder) { enc.Str(e.ClientRequestID) })
			if e.Metadata.Source != "" {
				enc.Field("source", func(enc *jx.Encoder) { enc.Str(e.Metadata.Source) })
			}
			if e.Metadata.OrderID != "" {
				enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(e.Metadata.OrderID) })
			}
		})
		if _, err := gz.Write(append(enc.Bytes(), '\n')); err != nil {
			return errors.Wrap(err, "write entry")
		}
	}

	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip stream")
	}
	return nil
}

func money(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
