package interfaces

import (
	"context"
	"time"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
)

// SubKind selects which push stream a subscription covers.
type SubKind string

const (
	SubQuote SubKind = "quote"
	SubDepth SubKind = "depth"
)

// TickHandler receives one push tick. Handlers must not block: the feed
// delivers all symbols from a single read loop.
type TickHandler func(tick market.Tick)

// DepthHandler receives one push depth update.
type DepthHandler func(depth market.Depth)

// QuoteFeed is the boundary to the external quote gateway: push streams with
// reference-counted subscriptions plus point queries.
type QuoteFeed interface {
	// Subscribe and Unsubscribe are idempotent per (symbol, kind): the
	// underlying stream subscription is opened on the first reference and
	// closed on the last.
	Subscribe(ctx context.Context, symbols []string, kinds []SubKind) error
	Unsubscribe(ctx context.Context, symbols []string, kinds []SubKind) error
	OnTick(h TickHandler)
	OnDepth(h DepthHandler)

	Quote(ctx context.Context, symbols []string) ([]market.Quote, error)
	OptionQuote(ctx context.Context, symbols []string) ([]options.ContractQuote, error)
	Depth(ctx context.Context, symbol string) (market.Depth, error)
	OptionChainExpiries(ctx context.Context, symbol string) ([]time.Time, error)
	OptionChainByDate(ctx context.Context, symbol string, expiry time.Time) ([]options.StrikeInfo, error)
	Intraday(ctx context.Context, symbol string) ([]market.IntradayPoint, error)
	CapitalFlow(ctx context.Context, symbol string) ([]market.CapitalFlowPoint, error)
	CapitalDistribution(ctx context.Context, symbol string) (market.CapitalDistribution, error)
	Candlesticks(ctx context.Context, symbol string, count int) ([]market.Candle, error)
}

// MarketCalendar answers whether the exchange is currently in its regular
// trading session. Provided by an external collaborator; the analytics code
// only consumes the answer.
type MarketCalendar interface {
	TradingNow() bool
	TradingAt(t time.Time) bool
}
