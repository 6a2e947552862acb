package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionQuote is the reduced quote reported for the pre/post-market session.
type SessionQuote struct {
	LastDone  decimal.Decimal `json:"last_done"`
	PrevClose decimal.Decimal `json:"prev_close"`
}

// Quote is a point-in-time quote for a stock symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	LastDone  decimal.Decimal `json:"last_done"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
	PreMarket *SessionQuote   `json:"pre_market,omitempty"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// IntradayPoint is one entry of the per-minute average price series.
type IntradayPoint struct {
	AvgPrice  decimal.Decimal `json:"avg_price"`
	Timestamp time.Time       `json:"timestamp"`
}
