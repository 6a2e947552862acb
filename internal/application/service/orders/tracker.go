// Package orders tracks the lifecycle of submitted option orders. Each
// (ticker, option type) owns an append-only stack of records: the top filled
// buy is the open position, closing sells stay below it for P&L audit, and
// canceled or rejected orders are popped during reconciliation so the stack
// never exposes an invalid position.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"longtrade/internal/application/service/chain"
	domain "longtrade/internal/domain/entity/orders"
	"longtrade/internal/domain/entity/options"
	"longtrade/internal/domain/interfaces"
)

// DefaultMultiplier is the shares-per-contract multiplier for US equity options.
const DefaultMultiplier = 100

// settleDelay is how long Submit waits before the first status poll, giving
// the venue time to report a fill for marketable orders.
const settleDelay = 500 * time.Millisecond

var (
	// ErrNoViableContract means every candidate in the near-the-money window
	// was exhausted. A normal outcome, not a fault.
	ErrNoViableContract = errors.New("no viable contract for purchase")
	ErrNoOpenPosition   = errors.New("no open position to close")
	ErrNoPendingOrder   = errors.New("no pending order")
)

var limitOffset = decimal.RequireFromString("0.05")

type stackKey struct {
	ticker string
	typ    options.Type
}

// stack serializes submit/reconcile for one (ticker, type) key. Different
// keys proceed concurrently.
type stack struct {
	mu      sync.Mutex
	records []domain.Record
}

// SubmitSpec describes how an order should be placed.
type SubmitSpec struct {
	OrderType domain.OrderType
	Sizing    domain.SizingPolicy
	Moneyness domain.Moneyness
}

// PositionView is the pair of current open positions for a ticker.
type PositionView struct {
	Put  *domain.Record `json:"put"`
	Call *domain.Record `json:"call"`
}

// Tracker owns all position stacks and reconciles them against the broker.
type Tracker struct {
	trade      interfaces.TradeService
	feed       interfaces.QuoteFeed
	chains     *chain.Service
	universe   map[string]struct{}
	multiplier decimal.Decimal

	mu     sync.Mutex
	stacks map[stackKey]*stack
}

func NewTracker(trade interfaces.TradeService, feed interfaces.QuoteFeed, chains *chain.Service, universe []string, multiplier int) *Tracker {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	tickers := make(map[string]struct{}, len(universe))
	for _, tk := range universe {
		tickers[tk] = struct{}{}
	}
	return &Tracker{
		trade:      trade,
		feed:       feed,
		chains:     chains,
		universe:   tickers,
		multiplier: decimal.NewFromInt(int64(multiplier)),
		stacks:     make(map[stackKey]*stack),
	}
}

func (t *Tracker) stackFor(ticker string, typ options.Type) *stack {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := stackKey{ticker: ticker, typ: typ}
	st, ok := t.stacks[key]
	if !ok {
		st = &stack{}
		t.stacks[key] = st
	}
	return st
}

// Restore seeds the stacks from broker-reported holdings at startup. Non-option
// positions and tickers outside the universe are skipped.
func (t *Tracker) Restore(ctx context.Context) error {
	positions, err := t.trade.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	for _, pos := range positions {
		ref, err := options.ParseSymbol(pos.Symbol)
		if err != nil {
			continue
		}
		if _, ok := t.universe[ref.Ticker]; !ok {
			continue
		}
		st := t.stackFor(ref.Ticker, ref.Type)
		st.mu.Lock()
		st.records = append(st.records, domain.Record{
			ID:         "HIST-" + pos.Symbol,
			Symbol:     pos.Symbol,
			Name:       ref.Name,
			Ticker:     ref.Ticker,
			OptionType: ref.Type,
			Side:       domain.SideBuy,
			Status:     domain.StatusFilled,
			Quantity:   pos.Quantity,
			ExecPrice:  pos.CostPrice,
		})
		st.mu.Unlock()
	}
	return nil
}

// OpenPositionTarget walks the near-the-money candidates for the policy and
// returns the first (symbol, quantity) the broker will size. Candidates the
// venue reports as not tradable are skipped; when all are exhausted the
// result is ErrNoViableContract, which callers treat as a normal outcome.
func (t *Tracker) OpenPositionTarget(ctx context.Context, ticker string, typ options.Type, sizing domain.SizingPolicy, moneyness domain.Moneyness) (string, decimal.Decimal, error) {
	preview, err := t.chains.Preview(ctx, ticker, typ)
	if err != nil {
		return "", decimal.Zero, err
	}
	symbols := preview.Symbols()
	half := len(symbols) / 2

	// Strike-ascending window: the lower half is OTM for puts and ITM for
	// calls, the upper half the reverse.
	if (typ == options.TypePut) == (moneyness == domain.MoneynessOTM) {
		symbols = symbols[:half]
	} else {
		symbols = symbols[half:]
	}

	for _, symbol := range symbols {
		est, err := t.trade.EstimateMaxPurchaseQuantity(ctx, symbol, domain.SideBuy)
		if errors.Is(err, interfaces.ErrNotTradable) {
			continue
		}
		if err != nil {
			return "", decimal.Zero, fmt.Errorf("estimate purchase quantity: %w", err)
		}
		qty := sizeFromEstimate(sizing, est)
		if qty.IsPositive() {
			return symbol, qty, nil
		}
	}
	return "", decimal.Zero, ErrNoViableContract
}

func sizeFromEstimate(policy domain.SizingPolicy, est interfaces.PurchaseEstimate) decimal.Decimal {
	one := decimal.NewFromInt(1)
	switch policy.Kind {
	case domain.SizingCashMax:
		return est.CashMax
	case domain.SizingMarginMax:
		return est.MarginMax
	case domain.SizingExact:
		if policy.Exact.GreaterThan(est.CashMax) {
			return est.CashMax
		}
		return policy.Exact
	default: // SizingMinimal
		if est.CashMax.GreaterThanOrEqual(one) {
			return one
		}
		return decimal.Zero
	}
}

// Submit places an order and appends its record to the (ticker, type) stack.
// Buys pick their contract via OpenPositionTarget; sells close the top-of-stack
// filled buy. The stack lock is held for the whole call, so at most one
// lifecycle transition is in flight per key.
func (t *Tracker) Submit(ctx context.Context, ticker string, typ options.Type, side domain.Side, spec SubmitSpec) (domain.Record, error) {
	st := t.stackFor(ticker, typ)
	st.mu.Lock()
	defer st.mu.Unlock()

	var (
		symbol    string
		qty       decimal.Decimal
		prevExec  decimal.Decimal
		haveLimit bool
		limit     decimal.Decimal
		err       error
	)

	switch side {
	case domain.SideBuy:
		symbol, qty, err = t.OpenPositionTarget(ctx, ticker, typ, spec.Sizing, spec.Moneyness)
		if err != nil {
			return domain.Record{}, err
		}
		if spec.OrderType == domain.OrderTypeLimit {
			depth, derr := t.feed.Depth(ctx, symbol)
			if derr != nil {
				return domain.Record{}, fmt.Errorf("fetch depth: %w", derr)
			}
			limit = depth.Bid.Price.Sub(limitOffset)
			haveLimit = true
		}
	case domain.SideSell:
		top, ok := topOpenBuy(st.records)
		if !ok {
			return domain.Record{}, ErrNoOpenPosition
		}
		symbol, qty, prevExec = top.Symbol, top.Quantity, top.ExecPrice
		if spec.OrderType == domain.OrderTypeLimit {
			depth, derr := t.feed.Depth(ctx, symbol)
			if derr != nil {
				return domain.Record{}, fmt.Errorf("fetch depth: %w", derr)
			}
			limit = depth.Ask.Price
			haveLimit = true
		}
	default:
		return domain.Record{}, fmt.Errorf("unknown order side %q", side)
	}

	req := interfaces.SubmitOrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		Type:          spec.OrderType,
		Quantity:      qty,
	}
	if haveLimit {
		req.Price = &limit
	}
	orderID, err := t.trade.SubmitOrder(ctx, req)
	if err != nil {
		return domain.Record{}, fmt.Errorf("submit order: %w", err)
	}

	rec := domain.Record{
		ID:          orderID,
		Symbol:      symbol,
		Ticker:      ticker,
		OptionType:  typ,
		Side:        side,
		Status:      domain.StatusSubmitted,
		Quantity:    qty,
		SubmittedAt: time.Now(),
	}
	if ref, perr := options.ParseSymbol(symbol); perr == nil {
		rec.Name = ref.Name
	}

	select {
	case <-ctx.Done():
		st.records = append(st.records, rec)
		return rec, ctx.Err()
	case <-time.After(settleDelay):
	}

	detail, err := t.trade.OrderDetail(ctx, orderID)
	if err != nil {
		// The order is live at the venue; keep the submitted record so a
		// later Reconcile can finish the transition, but surface the fault.
		st.records = append(st.records, rec)
		return rec, fmt.Errorf("fetch order detail: %w", err)
	}

	rec.Status = detail.Status
	rec.SubmittedAt = detail.SubmittedAt
	if detail.Name != "" {
		rec.Name = detail.Name
	}
	if detail.Status == domain.StatusFilled {
		rec.ExecPrice = detail.ExecutedPrice
		t.settle(&rec, prevExec)
	}
	st.records = append(st.records, rec)
	return rec, nil
}

// settle fills in the derived money fields of a filled record: total cost for
// buys, realized profit against the opening execution price for sells.
func (t *Tracker) settle(rec *domain.Record, prevExec decimal.Decimal) {
	switch rec.Side {
	case domain.SideBuy:
		rec.TotalCost = rec.ExecPrice.Mul(rec.Quantity).Mul(t.multiplier)
	case domain.SideSell:
		rec.Profit = rec.ExecPrice.Sub(prevExec).Mul(rec.Quantity).Mul(t.multiplier)
	}
}

// Reconcile refreshes the top-of-stack record from the broker: fills update
// in place, canceled and rejected orders are popped so no invalid position
// lingers. It returns the open position, if any. A broker fault leaves the
// stack untouched and is surfaced for the caller to retry.
func (t *Tracker) Reconcile(ctx context.Context, ticker string, typ options.Type) (domain.Record, bool, error) {
	st := t.stackFor(ticker, typ)
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.records) == 0 {
		return domain.Record{}, false, nil
	}

	top := &st.records[len(st.records)-1]
	switch {
	case top.Status == domain.StatusCanceled, top.Status == domain.StatusRejected:
		// A cancel or reject already visible at submit time was appended
		// terminal; pop it here without re-querying the venue.
		st.records = st.records[:len(st.records)-1]
	case !top.Status.Terminal():
		detail, err := t.trade.OrderDetail(ctx, top.ID)
		if err != nil {
			return domain.Record{}, false, fmt.Errorf("fetch order detail: %w", err)
		}
		switch detail.Status {
		case domain.StatusFilled:
			top.Status = domain.StatusFilled
			top.ExecPrice = detail.ExecutedPrice
			var prevExec decimal.Decimal
			if top.Side == domain.SideSell {
				if open, ok := openBuyBelow(st.records); ok {
					prevExec = open.ExecPrice
				}
			}
			t.settle(top, prevExec)
		case domain.StatusCanceled, domain.StatusRejected:
			st.records = st.records[:len(st.records)-1]
		}
	}

	if open, ok := topOpenBuy(st.records); ok {
		return open, true, nil
	}
	return domain.Record{}, false, nil
}

// Positions reconciles both sides for a ticker and returns the open put and
// call positions.
func (t *Tracker) Positions(ctx context.Context, ticker string) (PositionView, error) {
	var view PositionView
	if put, ok, err := t.Reconcile(ctx, ticker, options.TypePut); err != nil {
		return view, err
	} else if ok {
		view.Put = &put
	}
	if call, ok, err := t.Reconcile(ctx, ticker, options.TypeCall); err != nil {
		return view, err
	} else if ok {
		view.Call = &call
	}
	return view, nil
}

// Cancel asks the venue to cancel the top-of-stack pending order. The record
// itself is removed by the next Reconcile once the venue reports the cancel.
func (t *Tracker) Cancel(ctx context.Context, ticker string, typ options.Type) error {
	id, err := t.pendingOrderID(ticker, typ)
	if err != nil {
		return err
	}
	if err := t.trade.CancelOrder(ctx, id); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// Replace amends the top-of-stack pending order's quantity and price.
func (t *Tracker) Replace(ctx context.Context, ticker string, typ options.Type, quantity, price decimal.Decimal) error {
	id, err := t.pendingOrderID(ticker, typ)
	if err != nil {
		return err
	}
	if err := t.trade.ReplaceOrder(ctx, id, quantity, price); err != nil {
		return fmt.Errorf("replace order: %w", err)
	}
	return nil
}

// History returns a copy of the full stack for audit display.
func (t *Tracker) History(ticker string, typ options.Type) []domain.Record {
	st := t.stackFor(ticker, typ)
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]domain.Record(nil), st.records...)
}

func (t *Tracker) pendingOrderID(ticker string, typ options.Type) (string, error) {
	st := t.stackFor(ticker, typ)
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.records) == 0 {
		return "", ErrNoPendingOrder
	}
	top := st.records[len(st.records)-1]
	if top.Status.Terminal() {
		return "", ErrNoPendingOrder
	}
	return top.ID, nil
}

// topOpenBuy reports the stack's open position: a final filled buy.
func topOpenBuy(records []domain.Record) (domain.Record, bool) {
	if len(records) == 0 {
		return domain.Record{}, false
	}
	top := records[len(records)-1]
	if top.Side == domain.SideBuy && top.Status == domain.StatusFilled {
		return top, true
	}
	return domain.Record{}, false
}

// openBuyBelow finds the filled buy a closing sell refers to: the record just
// beneath the top of the stack.
func openBuyBelow(records []domain.Record) (domain.Record, bool) {
	if len(records) < 2 {
		return domain.Record{}, false
	}
	prev := records[len(records)-2]
	if prev.Side == domain.SideBuy && prev.Status == domain.StatusFilled {
		return prev, true
	}
	return domain.Record{}, false
}
