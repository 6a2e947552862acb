package options

import (
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/market"
)

// StrikeInfo is one row of the chain listing for an expiry date: the strike
// and the compact symbols of the put and call listed at it. Rows arrive from
// the gateway sorted by ascending strike.
type StrikeInfo struct {
	Price      decimal.Decimal `json:"price"`
	PutSymbol  string          `json:"put_symbol"`
	CallSymbol string          `json:"call_symbol"`
}

// ContractQuote is the live quote snapshot kept per cached contract. The
// identifying fields are fixed at chain load; the market fields are mutated
// in place by push events for the subscribed window.
type ContractQuote struct {
	Symbol               string            `json:"symbol"`
	Name                 string            `json:"name"`
	Strike               decimal.Decimal   `json:"strike"`
	LastDone             decimal.Decimal   `json:"last_done"`
	PrevClose            decimal.Decimal   `json:"prev_close"`
	Change               decimal.Decimal   `json:"change"`
	High                 decimal.Decimal   `json:"high"`
	Low                  decimal.Decimal   `json:"low"`
	Volume               int64             `json:"volume"`
	OpenInterest         int64             `json:"open_interest"`
	Bid                  market.DepthLevel `json:"bid"`
	Ask                  market.DepthLevel `json:"ask"`
	ImpliedVolatility    float64           `json:"implied_volatility"`
	HistoricalVolatility float64           `json:"historical_volatility"`
	Expiry               time.Time         `json:"expiry"`
	UpdatedAt            time.Time         `json:"updated_at"`
}
