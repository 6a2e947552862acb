package chain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
	"longtrade/internal/domain/interfaces"
)

type fakeCalendar struct{ open bool }

func (c *fakeCalendar) TradingNow() bool         { return c.open }
func (c *fakeCalendar) TradingAt(time.Time) bool { return c.open }

// fakeFeed serves a single synthetic chain and records subscription traffic.
type fakeFeed struct {
	spot     decimal.Decimal
	infos    []options.StrikeInfo
	expiries []time.Time

	chainCalls   int
	quoteCalls   int
	subscribed   []string
	unsubscribed []string
}

func newFakeFeed(t *testing.T, expiry time.Time, spot string, strikes ...int64) *fakeFeed {
	t.Helper()
	infos := make([]options.StrikeInfo, 0, len(strikes))
	for _, s := range strikes {
		price := decimal.NewFromInt(s)
		infos = append(infos, options.StrikeInfo{
			Price:      price,
			PutSymbol:  options.FormatSymbol("aapl", options.TypePut, expiry, price),
			CallSymbol: options.FormatSymbol("aapl", options.TypeCall, expiry, price),
		})
	}
	return &fakeFeed{spot: decimal.RequireFromString(spot), infos: infos}
}

func (f *fakeFeed) Subscribe(_ context.Context, symbols []string, _ []interfaces.SubKind) error {
	f.subscribed = append(f.subscribed, symbols...)
	return nil
}

func (f *fakeFeed) Unsubscribe(_ context.Context, symbols []string, _ []interfaces.SubKind) error {
	f.unsubscribed = append(f.unsubscribed, symbols...)
	return nil
}

func (f *fakeFeed) OnTick(interfaces.TickHandler)   {}
func (f *fakeFeed) OnDepth(interfaces.DepthHandler) {}

func (f *fakeFeed) Quote(_ context.Context, symbols []string) ([]market.Quote, error) {
	f.quoteCalls++
	return []market.Quote{{Symbol: symbols[0], LastDone: f.spot}}, nil
}

func (f *fakeFeed) OptionQuote(_ context.Context, symbols []string) ([]options.ContractQuote, error) {
	out := make([]options.ContractQuote, 0, len(symbols))
	for _, s := range symbols {
		ref, err := options.ParseSymbol(s)
		if err != nil {
			return nil, err
		}
		out = append(out, options.ContractQuote{
			Symbol:            s,
			LastDone:          ref.Strike.Div(decimal.NewFromInt(100)),
			PrevClose:         ref.Strike.Div(decimal.NewFromInt(200)),
			ImpliedVolatility: 0.3,
		})
	}
	return out, nil
}

func (f *fakeFeed) Depth(_ context.Context, symbol string) (market.Depth, error) {
	return market.Depth{Symbol: symbol}, nil
}

func (f *fakeFeed) OptionChainExpiries(context.Context, string) ([]time.Time, error) {
	return f.expiries, nil
}

func (f *fakeFeed) OptionChainByDate(_ context.Context, _ string, _ time.Time) ([]options.StrikeInfo, error) {
	f.chainCalls++
	return f.infos, nil
}

func (f *fakeFeed) Intraday(context.Context, string) ([]market.IntradayPoint, error) {
	return nil, nil
}

func (f *fakeFeed) CapitalFlow(context.Context, string) ([]market.CapitalFlowPoint, error) {
	return nil, nil
}

func (f *fakeFeed) CapitalDistribution(context.Context, string) (market.CapitalDistribution, error) {
	return market.CapitalDistribution{}, nil
}

func (f *fakeFeed) Candlesticks(context.Context, string, int) ([]market.Candle, error) {
	return nil, nil
}

var testExpiry = time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)

func TestChainRefreshQuotesWindowAndSubscribes(t *testing.T) {
	feed := newFakeFeed(t, testExpiry, "100", 90, 95, 100, 105, 110)
	svc := NewService(feed, &fakeCalendar{open: true}, 6, 0)

	contracts, sub, err := svc.Chain(context.Background(), "aapl", options.TypeCall, testExpiry, true)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if sub == nil {
		t.Fatalf("expected a live subscription")
	}
	defer sub.Close(context.Background())

	if len(contracts) != 5 {
		t.Fatalf("got %d contracts, want 5", len(contracts))
	}
	// Exact near-the-money match over a 5-strike chain: the whole chain is
	// inside the quote window.
	if len(feed.subscribed) != 5 {
		t.Fatalf("subscribed %d symbols, want 5", len(feed.subscribed))
	}
	atm := contracts[2]
	if !atm.Strike.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("middle strike = %s, want 100", atm.Strike)
	}
	if !atm.LastDone.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("window contract has no live quote: last done = %s", atm.LastDone)
	}
	if atm.Name == "" {
		t.Fatalf("contract name not derived from the symbol")
	}
}

func TestChainServesCachedEntryOutsideSession(t *testing.T) {
	feed := newFakeFeed(t, testExpiry, "100", 90, 95, 100, 105, 110)
	svc := NewService(feed, &fakeCalendar{open: false}, 6, 0)
	ctx := context.Background()

	if _, _, err := svc.Chain(ctx, "aapl", options.TypePut, testExpiry, true); err != nil {
		t.Fatalf("first chain: %v", err)
	}
	if feed.chainCalls != 1 {
		t.Fatalf("chain calls = %d, want 1", feed.chainCalls)
	}

	// Closed market: refresh requests are served from the cache.
	contracts, sub, err := svc.Chain(ctx, "aapl", options.TypePut, testExpiry, true)
	if err != nil {
		t.Fatalf("second chain: %v", err)
	}
	if sub != nil {
		t.Fatalf("cached reads must not open subscriptions")
	}
	if feed.chainCalls != 1 {
		t.Fatalf("chain calls = %d, want still 1", feed.chainCalls)
	}
	if len(contracts) != 5 {
		t.Fatalf("got %d contracts, want 5", len(contracts))
	}
}

func TestChainSidesAreCachedIndependently(t *testing.T) {
	feed := newFakeFeed(t, testExpiry, "100", 90, 95, 100, 105, 110)
	svc := NewService(feed, &fakeCalendar{open: false}, 6, 0)
	ctx := context.Background()

	puts, _, err := svc.Chain(ctx, "aapl", options.TypePut, testExpiry, false)
	if err != nil {
		t.Fatalf("puts: %v", err)
	}
	calls, _, err := svc.Chain(ctx, "aapl", options.TypeCall, testExpiry, false)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	if puts[0].Symbol == calls[0].Symbol {
		t.Fatalf("both sides resolved to the same symbol %s", puts[0].Symbol)
	}
	if feed.chainCalls != 2 {
		t.Fatalf("chain calls = %d, want one per side", feed.chainCalls)
	}
}

func TestPushRoutingThroughSubscription(t *testing.T) {
	feed := newFakeFeed(t, testExpiry, "100", 90, 95, 100, 105, 110)
	svc := NewService(feed, &fakeCalendar{open: true}, 6, 0)
	ctx := context.Background()

	_, sub, err := svc.Chain(ctx, "aapl", options.TypeCall, testExpiry, true)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	atmSymbol := options.FormatSymbol("aapl", options.TypeCall, testExpiry, decimal.NewFromInt(100))
	svc.HandleTick(market.Tick{Symbol: atmSymbol, LastDone: decimal.RequireFromString("2.45"), Volume: 42})
	svc.HandleDepth(market.Depth{
		Symbol: atmSymbol,
		Bid:    market.DepthLevel{Price: decimal.RequireFromString("2.40"), Quantity: 10},
		Ask:    market.DepthLevel{Price: decimal.RequireFromString("2.50"), Quantity: 12},
	})
	// Symbols outside every routing table are dropped.
	svc.HandleTick(market.Tick{Symbol: "NVDA.US", LastDone: decimal.NewFromInt(1)})

	contracts, err := sub.Contracts()
	if err != nil {
		t.Fatalf("contracts: %v", err)
	}
	atm := contracts[2]
	if !atm.LastDone.Equal(decimal.RequireFromString("2.45")) {
		t.Fatalf("tick not routed: last done = %s", atm.LastDone)
	}
	if atm.Volume != 42 {
		t.Fatalf("tick volume not routed: %d", atm.Volume)
	}
	if !atm.Bid.Price.Equal(decimal.RequireFromString("2.40")) || !atm.Ask.Price.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("depth not routed: bid %s ask %s", atm.Bid.Price, atm.Ask.Price)
	}

	if err := sub.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(feed.unsubscribed) != 5 {
		t.Fatalf("unsubscribed %d symbols, want 5", len(feed.unsubscribed))
	}

	// A closed subscription no longer routes.
	svc.HandleTick(market.Tick{Symbol: atmSymbol, LastDone: decimal.NewFromInt(9)})
	contracts, err = sub.Contracts()
	if err != nil {
		t.Fatalf("contracts after close: %v", err)
	}
	if !contracts[2].LastDone.Equal(decimal.RequireFromString("2.45")) {
		t.Fatalf("tick routed after close: %s", contracts[2].LastDone)
	}
}

func TestPreviewWindow(t *testing.T) {
	feed := newFakeFeed(t, testExpiry, "97", 90, 95, 100, 105, 110)
	svc := NewService(feed, &fakeCalendar{open: true}, 4, 0)

	p, err := svc.Preview(context.Background(), "aapl", options.TypePut)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.Ticker != "aapl" || p.Type != options.TypePut {
		t.Fatalf("preview header mangled: %+v", p)
	}
	if !p.Spot.Equal(decimal.NewFromInt(97)) {
		t.Fatalf("spot = %s, want 97", p.Spot)
	}
	// Spot between 95 and 100 with a 4-wide window: strikes 90..105.
	want := []int64{90, 95, 100, 105}
	if len(p.Strikes) != len(want) {
		t.Fatalf("got %d strikes, want %d", len(p.Strikes), len(want))
	}
	for i, s := range want {
		if !p.Strikes[i].Equal(decimal.NewFromInt(s)) {
			t.Fatalf("strike %d = %s, want %d", i, p.Strikes[i], s)
		}
	}
	symbols := p.Symbols()
	if len(symbols) != 4 || symbols[0] != p.Puts[0] {
		t.Fatalf("put preview must expose put symbols, got %v", symbols)
	}
}
