package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
)

// Preview is the near-the-money window for the next weekly expiry: the
// bracketing strikes plus the put and call symbols listed at them, strike
// ascending.
type Preview struct {
	Ticker  string            `json:"tk"`
	Type    options.Type      `json:"type"`
	Expiry  time.Time         `json:"expiry"`
	Spot    decimal.Decimal   `json:"spot"`
	Strikes []decimal.Decimal `json:"strikes"`
	Puts    []string          `json:"puts"`
	Calls   []string          `json:"calls"`
}

// Symbols returns the window symbols for the preview's side.
func (p Preview) Symbols() []string {
	if p.Type == options.TypePut {
		return append([]string(nil), p.Puts...)
	}
	return append([]string(nil), p.Calls...)
}

// Preview locates the near-the-money window for the next weekly expiry
// without touching the cache. It backs the chain preview endpoint, the IV
// factor and the order tracker's candidate selection.
func (s *Service) Preview(ctx context.Context, ticker string, typ options.Type) (Preview, error) {
	expiry, err := s.ResolveExpiry(ctx, ticker)
	if err != nil {
		return Preview{}, err
	}

	quotes, err := s.feed.Quote(ctx, []string{market.QualifySymbol(ticker)})
	if err != nil {
		return Preview{}, fmt.Errorf("fetch underlying quote: %w", err)
	}
	if len(quotes) == 0 {
		return Preview{}, ErrNoQuote
	}
	spot := quotes[0].LastDone

	infos, err := s.feed.OptionChainByDate(ctx, market.QualifySymbol(ticker), expiry)
	if err != nil {
		return Preview{}, fmt.Errorf("fetch option chain: %w", err)
	}
	if len(infos) == 0 {
		return Preview{}, ErrEmptyChain
	}

	strikes := make([]decimal.Decimal, len(infos))
	for i, info := range infos {
		strikes[i] = info.Price
	}
	left, right := NearTheMoneyIndex(strikes, spot)
	window := quoteWindow(left, right, s.numQuoted, s.bias, typ, len(infos))

	p := Preview{
		Ticker:  ticker,
		Type:    typ,
		Expiry:  expiry,
		Spot:    spot,
		Strikes: make([]decimal.Decimal, 0, len(window)),
		Puts:    make([]string, 0, len(window)),
		Calls:   make([]string, 0, len(window)),
	}
	for _, i := range window {
		p.Strikes = append(p.Strikes, infos[i].Price)
		p.Puts = append(p.Puts, infos[i].PutSymbol)
		p.Calls = append(p.Calls, infos[i].CallSymbol)
	}
	return p, nil
}
