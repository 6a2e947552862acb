// Package chain maintains the option-chain cache: per-(ticker, type, expiry)
// contract lists decorated with live quotes for a bounded window around the
// money, refreshed per request during trading hours and served stale outside
// them. Push events reach cached records through per-subscription routing
// tables, so concurrent clients viewing different chains never clobber each
// other.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
	"longtrade/internal/domain/interfaces"
)

const (
	// DefaultNumQuoted is the size of the live-quoted window around the money.
	DefaultNumQuoted = 6
	// DefaultBias adds no extra out-of-the-money contracts.
	DefaultBias = 0
)

var (
	ErrEmptyChain = errors.New("option chain is empty")
	ErrNoQuote    = errors.New("no quote for underlying")
	ErrEntryStale = errors.New("chain entry no longer cached")
)

type entryKey struct {
	ticker string
	typ    options.Type
	expiry string // YYMMDD
}

// entry is one cached chain side. Contracts are strike-ascending and cover
// every listed strike of the expiry; only the near-the-money window carries
// live quote fields.
type entry struct {
	mu        sync.RWMutex
	contracts []options.ContractQuote
	updatedAt time.Time
}

func (e *entry) snapshot() []options.ContractQuote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]options.ContractQuote, len(e.contracts))
	copy(out, e.contracts)
	return out
}

// Service is the option-chain cache.
type Service struct {
	feed      interfaces.QuoteFeed
	calendar  interfaces.MarketCalendar
	numQuoted int
	bias      int

	mu      sync.RWMutex
	entries map[entryKey]*entry
	subs    map[*Subscription]struct{}
}

func NewService(feed interfaces.QuoteFeed, calendar interfaces.MarketCalendar, numQuoted, bias int) *Service {
	if numQuoted <= 0 {
		numQuoted = DefaultNumQuoted
	}
	if bias < 0 {
		bias = DefaultBias
	}
	return &Service{
		feed:      feed,
		calendar:  calendar,
		numQuoted: numQuoted,
		bias:      bias,
		entries:   make(map[entryKey]*entry),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Chain returns the cached chain side for (ticker, typ, expiry), refreshing
// contract structure and the near-the-money quote window when refreshQuotes
// is set and the market is open. Outside trading hours a prior entry is
// served as-is. The returned Subscription is non-nil only when live quotes
// were subscribed; the caller owns it and must Close it.
func (s *Service) Chain(ctx context.Context, ticker string, typ options.Type, expiry time.Time, refreshQuotes bool) ([]options.ContractQuote, *Subscription, error) {
	key := entryKey{ticker: ticker, typ: typ, expiry: expiry.Format("060102")}

	s.mu.RLock()
	ent := s.entries[key]
	s.mu.RUnlock()

	if ent != nil && (!refreshQuotes || !s.calendar.TradingNow()) {
		return ent.snapshot(), nil, nil
	}

	contracts, err := s.loadContracts(ctx, ticker, typ, expiry)
	if err != nil {
		return nil, nil, err
	}

	var sub *Subscription
	if refreshQuotes {
		sub, err = s.refreshQuotes(ctx, ticker, typ, key, contracts)
		if err != nil {
			return nil, nil, err
		}
	}

	ent = &entry{contracts: contracts, updatedAt: time.Now()}
	s.mu.Lock()
	s.entries[key] = ent
	if sub != nil {
		s.subs[sub] = struct{}{}
	}
	s.mu.Unlock()

	return ent.snapshot(), sub, nil
}

// loadContracts fetches the chain listing for the expiry and derives one
// ContractQuote skeleton per strike for the requested side.
func (s *Service) loadContracts(ctx context.Context, ticker string, typ options.Type, expiry time.Time) ([]options.ContractQuote, error) {
	infos, err := s.feed.OptionChainByDate(ctx, market.QualifySymbol(ticker), expiry)
	if err != nil {
		return nil, fmt.Errorf("fetch option chain: %w", err)
	}
	if len(infos) == 0 {
		return nil, ErrEmptyChain
	}

	contracts := make([]options.ContractQuote, 0, len(infos))
	for _, info := range infos {
		symbol := info.CallSymbol
		if typ == options.TypePut {
			symbol = info.PutSymbol
		}
		ref, err := options.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("decode chain symbol: %w", err)
		}
		contracts = append(contracts, options.ContractQuote{
			Symbol: symbol,
			Name:   ref.Name,
			Strike: info.Price,
			Expiry: ref.Expiry,
		})
	}
	return contracts, nil
}

// refreshQuotes fetches live quotes for the window around the money, splices
// them into contracts in place, and subscribes the window symbols for push
// updates routed through the returned Subscription.
func (s *Service) refreshQuotes(ctx context.Context, ticker string, typ options.Type, key entryKey, contracts []options.ContractQuote) (*Subscription, error) {
	quotes, err := s.feed.Quote(ctx, []string{market.QualifySymbol(ticker)})
	if err != nil {
		return nil, fmt.Errorf("fetch underlying quote: %w", err)
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuote
	}
	spot := quotes[0].LastDone

	strikes := make([]decimal.Decimal, len(contracts))
	for i, c := range contracts {
		strikes[i] = c.Strike
	}
	left, right := NearTheMoneyIndex(strikes, spot)
	window := quoteWindow(left, right, s.numQuoted, s.bias, typ, len(contracts))

	symbols := make([]string, len(window))
	index := make(map[string]int, len(window))
	for i, ci := range window {
		symbols[i] = contracts[ci].Symbol
		index[contracts[ci].Symbol] = ci
	}

	live, err := s.feed.OptionQuote(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("fetch option quotes: %w", err)
	}
	for _, q := range live {
		ci, ok := index[q.Symbol]
		if !ok {
			continue
		}
		c := &contracts[ci]
		c.LastDone = q.LastDone
		c.PrevClose = q.PrevClose
		c.Change = q.LastDone.Sub(q.PrevClose)
		c.High = q.High
		c.Low = q.Low
		c.Volume = q.Volume
		c.OpenInterest = q.OpenInterest
		c.ImpliedVolatility = q.ImpliedVolatility
		c.HistoricalVolatility = q.HistoricalVolatility
		c.UpdatedAt = time.Now()
	}

	if err := s.feed.Subscribe(ctx, symbols, []interfaces.SubKind{interfaces.SubQuote, interfaces.SubDepth}); err != nil {
		return nil, fmt.Errorf("subscribe option window: %w", err)
	}

	return &Subscription{svc: s, key: key, index: index, symbols: symbols}, nil
}

// HandleTick routes one option push tick to every subscription that carries
// the symbol. Events for unsubscribed symbols are dropped.
func (s *Service) HandleTick(t market.Tick) {
	for _, sub := range s.activeSubs() {
		sub.applyTick(t)
	}
}

// HandleDepth routes one option depth update the same way.
func (s *Service) HandleDepth(d market.Depth) {
	for _, sub := range s.activeSubs() {
		sub.applyDepth(d)
	}
}

func (s *Service) activeSubs() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *Service) entryFor(key entryKey) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

func (s *Service) dropSub(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Subscription is one client's routing context for the quote window it
// requested. It maps window symbols to positions in the cached entry and is
// independent of every other client's view.
type Subscription struct {
	svc     *Service
	key     entryKey
	index   map[string]int
	symbols []string
}

func (sub *Subscription) applyTick(t market.Tick) {
	ci, ok := sub.index[t.Symbol]
	ent := sub.svc.entryFor(sub.key)
	if !ok || ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ci >= len(ent.contracts) {
		return
	}
	c := &ent.contracts[ci]
	c.LastDone = t.LastDone
	c.Change = t.LastDone.Sub(c.PrevClose)
	c.High = t.High
	c.Low = t.Low
	c.Volume = t.Volume
	c.UpdatedAt = t.Timestamp
}

func (sub *Subscription) applyDepth(d market.Depth) {
	ci, ok := sub.index[d.Symbol]
	ent := sub.svc.entryFor(sub.key)
	if !ok || ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ci >= len(ent.contracts) {
		return
	}
	ent.contracts[ci].Bid = d.Bid
	ent.contracts[ci].Ask = d.Ask
}

// Contracts returns a copy of the cached entry this subscription points at.
func (sub *Subscription) Contracts() ([]options.ContractQuote, error) {
	ent := sub.svc.entryFor(sub.key)
	if ent == nil {
		return nil, ErrEntryStale
	}
	return ent.snapshot(), nil
}

// Close detaches the subscription from push routing and releases the feed
// subscriptions it holds.
func (sub *Subscription) Close(ctx context.Context) error {
	sub.svc.dropSub(sub)
	return sub.svc.feed.Unsubscribe(ctx, sub.symbols, []interfaces.SubKind{interfaces.SubQuote, interfaces.SubDepth})
}
