// Package agent implements a deterministic, rule-based chat front end over
// the shop engine. It keeps per-conversation state for two-step confirmation
// flows (purchases and top-ups) and answers everything else from a small set
// of keyword intents.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shopledger/internal/domain/order"
	"shopledger/internal/domain/product"
	"shopledger/internal/shop"
)

// Engine is the slice of the shop service the agent needs.
type Engine interface {
	GetBalance(ctx context.Context, userID string) (*shop.Balance, error)
	AddFunds(ctx context.Context, req shop.AddFundsRequest) (*shop.AddFundsResult, error)
	SearchProducts(ctx context.Context, query string) ([]product.Product, error)
	GetProduct(ctx context.Context, productID string) (*product.Product, error)
	Purchase(ctx context.Context, req shop.PurchaseRequest) (*shop.PurchaseResult, error)
	GetOrders(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

var (
	yesWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true,
		"sure": true, "ok": true, "okay": true, "confirm": true,
	}
	noWords = map[string]bool{
		"no": true, "n": true, "nope": true, "cancel": true, "stop": true,
	}

	moneyRe    = regexp.MustCompile(`\$?\s*(\d+(?:\.\d{1,2})?)`)
	buyQtyRe   = regexp.MustCompile(`(?i)\bbuy\s+(\d+)\s+(.+)`)
	buyRe      = regexp.MustCompile(`(?i)\bbuy\s+(.+)`)
	showListRe = regexp.MustCompile(`(?i)^(show|list)\s+(me\s+)?`)
)

type pendingPurchase struct {
	productID   string
	productName string
	quantity    int64
	totalCents  int64
	requestID   string
}

type pendingTopup struct {
	amountCents int64
	requestID   string
}

// Agent holds one user's conversation state. Not safe for concurrent use;
// run one Agent per session.
type Agent struct {
	engine Engine
	userID string

	purchase *pendingPurchase
	topup    *pendingTopup
}

// New creates an agent bound to a user.
func New(engine Engine, userID string) *Agent {
	return &Agent{engine: engine, userID: userID}
}

// Handle processes one user utterance and returns the reply.
func (a *Agent) Handle(ctx context.Context, text string) (string, error) {
	t := strings.TrimSpace(text)
	tl := strings.ToLower(t)

	if a.topup != nil {
		return a.confirmTopup(ctx, tl)
	}
	if a.purchase != nil {
		return a.confirmPurchase(ctx, tl)
	}

	switch {
	case strings.Contains(tl, "balance"):
		return a.balance(ctx)
	case strings.HasPrefix(tl, "show") || strings.HasPrefix(tl, "list") ||
		strings.Contains(tl, "catalog") || tl == "products" || tl == "product":
		return a.listProducts(ctx, t)
	case strings.HasPrefix(tl, "add") || strings.Contains(tl, "top up") || strings.Contains(tl, "load"):
		return a.startTopup(t)
	case strings.HasPrefix(tl, "buy"):
		return a.startPurchase(ctx, t)
	case strings.Contains(tl, "orders") || strings.Contains(tl, "history"):
		return a.orders(ctx)
	}

	return "I can help with: balance, show products, buy <qty> <item>, add $<amount>, orders.\n" +
		"Example: 'show me cables' or 'buy 2 ethernet cable'.", nil
}

func (a *Agent) confirmTopup(ctx context.Context, tl string) (string, error) {
	switch {
	case yesWords[tl]:
		top := a.topup
		a.topup = nil
		out, err := a.engine.AddFunds(ctx, shop.AddFundsRequest{
			UserID:          a.userID,
			AmountCents:     top.amountCents,
			Source:          "external",
			ClientRequestID: top.requestID,
		})
		if err != nil {
			return "", errors.Wrap(err, "add funds")
		}
		return fmt.Sprintf("Added %s. New balance: %s.",
			formatMoney(out.AddedCents), formatMoney(out.NewBalanceCents)), nil
	case noWords[tl]:
		a.topup = nil
		return "Okay, top-up cancelled.", nil
	}
	return "Please reply 'yes' to confirm the top-up or 'no' to cancel.", nil
}

func (a *Agent) confirmPurchase(ctx context.Context, tl string) (string, error) {
	switch {
	case yesWords[tl]:
		pp := a.purchase
		a.purchase = nil
		out, err := a.engine.Purchase(ctx, shop.PurchaseRequest{
			UserID:          a.userID,
			ProductID:       pp.productID,
			Quantity:        pp.quantity,
			ClientRequestID: pp.requestID,
		})
		if err != nil {
			return "", errors.Wrap(err, "purchase")
		}
		return fmt.Sprintf("Order placed: %s\n- Item: %s x%d\n- Total: %s\n- New balance: %s",
			out.OrderID, pp.productName, pp.quantity,
			formatMoney(out.TotalCents), formatMoney(out.NewBalanceCents)), nil
	case noWords[tl]:
		a.purchase = nil
		return "Okay, purchase cancelled.", nil
	}
	return "Please reply 'yes' to confirm the purchase or 'no' to cancel.", nil
}

func (a *Agent) balance(ctx context.Context) (string, error) {
	b, err := a.engine.GetBalance(ctx, a.userID)
	if err != nil {
		return "", errors.Wrap(err, "get balance")
	}
	return fmt.Sprintf("Your balance is %s.", formatMoney(b.BalanceCents)), nil
}

func (a *Agent) listProducts(ctx context.Context, t string) (string, error) {
	query := strings.TrimSpace(showListRe.ReplaceAllString(t, ""))

	switch strings.ToLower(query) {
	case "", "products", "product", "catalog", "all", "everything", "inventory", "stock":
		query = ""
	}

	products, err := a.engine.SearchProducts(ctx, query)
	if err != nil {
		return "", errors.Wrap(err, "search products")
	}
	if len(products) == 0 {
		return "I didn't find matching products.", nil
	}

	var sb strings.Builder
	sb.WriteString("Here are the products we currently have:")
	for _, p := range products {
		fmt.Fprintf(&sb, "\n%s: %s, %s (stock %d)", p.ID, p.Name, formatMoney(p.PriceCents), p.Inventory)
	}
	return sb.String(), nil
}

func (a *Agent) startTopup(t string) (string, error) {
	cents, ok := moneyToCents(t)
	if !ok || cents <= 0 {
		return "How much would you like to add? Example: 'add $50'", nil
	}
	a.topup = &pendingTopup{
		amountCents: cents,
		requestID:   "topup_" + uuid.New().String(),
	}
	return fmt.Sprintf("Confirm top-up of %s? (yes/no)", formatMoney(cents)), nil
}

func (a *Agent) startPurchase(ctx context.Context, t string) (string, error) {
	qty, query := quantityAndQuery(t)

	products, err := a.engine.SearchProducts(ctx, query)
	if err != nil {
		return "", errors.Wrap(err, "search products")
	}
	if len(products) == 0 {
		return "I couldn't find that product in the catalog. Try 'show me <item>'.", nil
	}

	// First match wins. Simple and deterministic.
	prod, err := a.engine.GetProduct(ctx, products[0].ID)
	if err != nil {
		return "", errors.Wrap(err, "get product")
	}

	if prod.Inventory < qty {
		return fmt.Sprintf("Sorry, only %d left in stock for %s.", prod.Inventory, prod.Name), nil
	}

	total := prod.PriceCents * qty
	b, err := a.engine.GetBalance(ctx, a.userID)
	if err != nil {
		return "", errors.Wrap(err, "get balance")
	}
	if b.BalanceCents < total {
		short := total - b.BalanceCents
		a.topup = &pendingTopup{
			amountCents: short,
			requestID:   "topup_" + uuid.New().String(),
		}
		return fmt.Sprintf("Insufficient funds. You need %s but have %s.\nWould you like to top up %s to proceed? (yes/no)",
			formatMoney(total), formatMoney(b.BalanceCents), formatMoney(short)), nil
	}

	a.purchase = &pendingPurchase{
		productID:   prod.ID,
		productName: prod.Name,
		quantity:    qty,
		totalCents:  total,
		requestID:   "purchase_" + uuid.New().String(),
	}
	return fmt.Sprintf("Confirm purchase: %s x%d for %s? (yes/no)",
		prod.Name, qty, formatMoney(total)), nil
}

func (a *Agent) orders(ctx context.Context) (string, error) {
	orders, err := a.engine.GetOrders(ctx, a.userID, 5)
	if err != nil {
		return "", errors.Wrap(err, "get orders")
	}
	if len(orders) == 0 {
		return "You have no recent orders.", nil
	}

	var sb strings.Builder
	sb.WriteString("Recent orders:")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n%s | %s | %s | %s",
			o.ID, o.Status, formatMoney(o.TotalCents), o.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return sb.String(), nil
}

// moneyToCents parses amounts like "$50", "50" and "50.25" out of free text.
func moneyToCents(text string) (int64, bool) {
	m := moneyRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return 0, false
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart(), true
}

// quantityAndQuery splits "buy 2 ethernet cables" into (2, "ethernet
// cables"). A bare "buy ethernet cable" defaults to quantity 1.
func quantityAndQuery(text string) (int64, string) {
	if m := buyQtyRe.FindStringSubmatch(text); m != nil {
		qty, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && qty > 0 {
			return qty, strings.TrimSpace(m[2])
		}
	}
	if m := buyRe.FindStringSubmatch(text); m != nil {
		return 1, strings.TrimSpace(m[1])
	}
	return 1, strings.TrimSpace(text)
}

// formatMoney renders cents as "$12.34".
func formatMoney(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
