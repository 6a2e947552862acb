// Package factors derives the per-ticker decision factors shown next to the
// live quote board: capital flow, implied-volatility panel, intraday
// correlation, pre-market moves and the previous-close ladder. Everything
// here is a read-only composition over the quote feed and the chain cache.
package factors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"longtrade/internal/application/service/chain"
	"longtrade/internal/application/service/indicator"
	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
	"longtrade/internal/domain/interfaces"
)

const (
	classUp      = "🟢"
	classDown    = "🔴"
	classNeutral = "⚪️"

	stampLayout = "01.02 15:04"
)

var (
	ErrNoQuote      = errors.New("no quote for ticker")
	ErrNoPreMarket  = errors.New("pre-market quote unavailable")
	ErrShortHistory = errors.New("not enough candle history")
)

var million = decimal.New(1, 6)

// SuppLine is one supplementary row under a factor value.
type SuppLine struct {
	Class string `json:"cls"`
	Value string `json:"val"`
}

// Factor is one card of the factor panel.
type Factor struct {
	Class     string     `json:"cls"`
	Value     string     `json:"value"`
	Timestamp string     `json:"timestamp,omitempty"`
	Supp      []SuppLine `json:"supp,omitempty"`
	Title     string     `json:"title"`
}

// DayStat is the intraday range relative to the reference close.
type DayStat struct {
	PrevClose decimal.Decimal `json:"prevClose"`
	Max       decimal.Decimal `json:"max"`
	Min       decimal.Decimal `json:"min"`
}

// Service computes factors for the configured universe.
type Service struct {
	feed     interfaces.QuoteFeed
	chains   *chain.Service
	calendar interfaces.MarketCalendar
	engine   *indicator.Engine
	universe []string
	loc      *time.Location
}

func NewService(feed interfaces.QuoteFeed, chains *chain.Service, calendar interfaces.MarketCalendar, engine *indicator.Engine, universe []string, loc *time.Location) *Service {
	return &Service{
		feed:     feed,
		chains:   chains,
		calendar: calendar,
		engine:   engine,
		universe: append([]string(nil), universe...),
		loc:      loc,
	}
}

// DayStat returns the reference close and the day's high/low relative to the
// previous close. Outside the session the reference close is the last trade.
func (s *Service) DayStat(ctx context.Context, ticker string) (DayStat, error) {
	quotes, err := s.feed.Quote(ctx, []string{market.QualifySymbol(ticker)})
	if err != nil {
		return DayStat{}, fmt.Errorf("fetch quote: %w", err)
	}
	if len(quotes) == 0 {
		return DayStat{}, ErrNoQuote
	}
	q := quotes[0]

	prevClose := q.PrevClose
	if !s.calendar.TradingNow() {
		prevClose = q.LastDone
	}
	return DayStat{
		PrevClose: prevClose,
		Max:       q.High.Sub(q.PrevClose),
		Min:       q.Low.Sub(q.PrevClose),
	}, nil
}

// CapitalFlow reports the latest intraday net inflow plus the
// large/medium/small distribution, in millions.
func (s *Service) CapitalFlow(ctx context.Context, ticker string) (Factor, error) {
	symbol := market.QualifySymbol(ticker)

	flow := decimal.Zero
	stamp := ""
	series, err := s.feed.CapitalFlow(ctx, symbol)
	if err != nil {
		return Factor{}, fmt.Errorf("fetch capital flow: %w", err)
	}
	if len(series) > 0 {
		last := series[len(series)-1]
		flow = last.Inflow.Div(million).Round(2)
		stamp = last.Timestamp.In(s.loc).Format(stampLayout)
	}

	dist, err := s.feed.CapitalDistribution(ctx, symbol)
	if err != nil {
		return Factor{}, fmt.Errorf("fetch capital distribution: %w", err)
	}
	large := dist.In.Large.Sub(dist.Out.Large)
	medium := dist.In.Medium.Sub(dist.Out.Medium)
	small := dist.In.Small.Sub(dist.Out.Small)

	supp := []SuppLine{
		{Class: classOf(large), Value: "large: " + large.Div(million).Round(2).String() + "M"},
		{Class: classOf(medium), Value: "medium: " + medium.Div(million).Round(2).String() + "M"},
		{Class: classOf(small), Value: "small: " + small.Div(million).Round(2).String() + "M"},
	}
	return Factor{
		Class:     classOf(flow),
		Value:     flow.String() + "M",
		Timestamp: stamp,
		Supp:      supp,
		Title:     "cap",
	}, nil
}

// IVPanel compares the mean implied volatility of the near-the-money window
// against its historical volatility, with a per-strike put/call breakdown.
func (s *Service) IVPanel(ctx context.Context, ticker string) (Factor, error) {
	preview, err := s.chains.Preview(ctx, ticker, options.TypePut)
	if err != nil {
		return Factor{}, err
	}

	symbols := append(append([]string(nil), preview.Puts...), preview.Calls...)
	quotes, err := s.feed.OptionQuote(ctx, symbols)
	if err != nil {
		return Factor{}, fmt.Errorf("fetch option quotes: %w", err)
	}
	if len(quotes) == 0 {
		return Factor{}, chain.ErrEmptyChain
	}

	var ivSum, hvSum float64
	ivBySymbol := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		ivSum += q.ImpliedVolatility
		hvSum += q.HistoricalVolatility
		ivBySymbol[q.Symbol] = q.ImpliedVolatility
	}
	meanIV := ivSum / float64(len(quotes))
	meanHV := hvSum / float64(len(quotes))

	cls := classUp
	if meanIV > meanHV {
		cls = classDown
	}

	supp := []SuppLine{{Class: cls, Value: "Put   -S-   Call"}}
	for i, strike := range preview.Strikes {
		put := ivBySymbol[preview.Puts[i]]
		call := ivBySymbol[preview.Calls[i]]
		supp = append(supp, SuppLine{
			Class: cls,
			Value: fmt.Sprintf("%.1f%% -%s- %.1f%%", put*100, strike.String(), call*100),
		})
	}

	stamp := ""
	if !quotes[0].UpdatedAt.IsZero() {
		stamp = quotes[0].UpdatedAt.In(s.loc).Format(stampLayout)
	}
	return Factor{
		Class:     cls,
		Value:     fmt.Sprintf("%.1f%% / %.1f%%", meanIV*100, meanHV*100),
		Timestamp: stamp,
		Supp:      supp,
		Title:     "IV",
	}, nil
}

// Correlation ranks the rest of the universe by Pearson correlation of the
// intraday average-price series against the queried ticker.
func (s *Service) Correlation(ctx context.Context, ticker string) (Factor, error) {
	series := make(map[string][]float64, len(s.universe))
	minLen := 0
	for _, tk := range s.universe {
		points, err := s.feed.Intraday(ctx, market.QualifySymbol(tk))
		if err != nil {
			return Factor{}, fmt.Errorf("fetch intraday for %s: %w", tk, err)
		}
		vals := make([]float64, len(points))
		for i, p := range points {
			vals[i] = p.AvgPrice.InexactFloat64()
		}
		series[tk] = vals
		if minLen == 0 || len(vals) < minLen {
			minLen = len(vals)
		}
	}
	if minLen < 2 {
		return Factor{}, ErrShortHistory
	}

	base := series[ticker][:minLen]
	type ranked struct {
		ticker string
		corr   float64
		delta  decimal.Decimal
	}
	rankings := make([]ranked, 0, len(s.universe)-1)
	for _, tk := range s.universe {
		if tk == ticker {
			continue
		}
		delta := decimal.Zero
		if snap, err := s.engine.Snapshot(tk); err == nil {
			delta = snap.Delta
		}
		rankings = append(rankings, ranked{
			ticker: tk,
			corr:   stat.Correlation(base, series[tk][:minLen], nil),
			delta:  delta,
		})
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].corr > rankings[j].corr })
	if len(rankings) == 0 {
		return Factor{}, ErrShortHistory
	}

	supp := make([]SuppLine, 0, len(rankings)-1)
	for _, r := range rankings[1:] {
		supp = append(supp, SuppLine{
			Class: classOf(r.delta),
			Value: fmt.Sprintf("%s %.2f", r.ticker, r.corr),
		})
	}
	lead := rankings[0]
	return Factor{
		Class:     classOf(lead.delta),
		Value:     fmt.Sprintf("%s 𝜸=%.2f", lead.ticker, lead.corr),
		Timestamp: time.Now().In(s.loc).Format(stampLayout),
		Supp:      supp,
		Title:     "corr",
	}, nil
}

// Factors assembles the factor panel: placeholders for the cards the client
// loads separately, pre-market change vs SPY/QQQ, the previous-close ladder,
// and the IV panel.
func (s *Service) Factors(ctx context.Context, ticker string) ([]Factor, error) {
	rate, preSupp, err := s.preMarket(ctx, ticker)
	if err != nil {
		return nil, err
	}

	closes, err := s.prevCloses(ctx, ticker)
	if err != nil {
		return nil, err
	}
	ladder := make([]SuppLine, len(closes))
	for i, c := range closes {
		val := c.String()
		if c.Sign() > 0 {
			val = "+" + val
		}
		ladder[i] = SuppLine{Class: classOf(c), Value: val}
	}
	if len(ladder) == 0 {
		return nil, ErrShortHistory
	}

	preValue := rate.String() + "%"
	if rate.Sign() > 0 {
		preValue = "+" + preValue
	}

	out := []Factor{
		{Class: classNeutral, Value: "0", Title: "cap"},
		{Class: classNeutral, Value: "0", Title: "corr"},
		{Class: classOf(rate), Value: preValue, Supp: preSupp, Title: "pre-market"},
		{Class: ladder[0].Class, Value: ladder[0].Value, Supp: ladder, Title: "prev."},
	}

	iv, err := s.IVPanel(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return append(out, iv), nil
}

// prevCloses builds the close-over-close ladder from daily candles, most
// recent first. The forming bar is dropped during the session.
func (s *Service) prevCloses(ctx context.Context, ticker string) ([]decimal.Decimal, error) {
	candles, err := s.feed.Candlesticks(ctx, market.QualifySymbol(ticker), 12)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	if s.calendar.TradingNow() && len(closes) > 0 {
		closes = closes[:len(closes)-1]
	}
	if len(closes) < 2 {
		return nil, ErrShortHistory
	}
	out := make([]decimal.Decimal, 0, len(closes)-1)
	for j := len(closes) - 1; j > 0; j-- {
		out = append(out, closes[j].Sub(closes[j-1]).Round(2))
	}
	return out, nil
}

// preMarket returns the pre-market percentage change for the ticker plus
// SPY/QQQ reference lines.
func (s *Service) preMarket(ctx context.Context, ticker string) (decimal.Decimal, []SuppLine, error) {
	quotes, err := s.feed.Quote(ctx, []string{
		market.QualifySymbol(ticker),
		market.QualifySymbol("qqq"),
		market.QualifySymbol("spy"),
	})
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("fetch pre-market quotes: %w", err)
	}
	if len(quotes) < 3 {
		return decimal.Zero, nil, ErrNoPreMarket
	}

	rate, err := preMarketRate(quotes[0])
	if err != nil {
		return decimal.Zero, nil, err
	}
	qqq, err := preMarketRate(quotes[1])
	if err != nil {
		return decimal.Zero, nil, err
	}
	spy, err := preMarketRate(quotes[2])
	if err != nil {
		return decimal.Zero, nil, err
	}

	supp := []SuppLine{
		{Class: classOf(spy), Value: "SPY " + signedPercent(spy)},
		{Class: classOf(qqq), Value: "QQQ " + signedPercent(qqq)},
	}
	return rate, supp, nil
}

func preMarketRate(q market.Quote) (decimal.Decimal, error) {
	if q.PreMarket == nil || q.PreMarket.PrevClose.IsZero() {
		return decimal.Zero, ErrNoPreMarket
	}
	change := q.PreMarket.LastDone.Sub(q.PreMarket.PrevClose)
	return change.Div(q.PreMarket.PrevClose).Mul(decimal.NewFromInt(100)).Round(2), nil
}

func signedPercent(d decimal.Decimal) string {
	if d.Sign() > 0 {
		return "+" + d.String() + "%"
	}
	return d.String() + "%"
}

func classOf(d decimal.Decimal) string {
	if d.Sign() <= 0 {
		return classDown
	}
	return classUp
}
