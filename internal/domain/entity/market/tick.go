package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange suffix appended to every symbol sent to the quote gateway.
const ExchangeSuffix = ".US"

// Tick is one push update of last trade price/volume/high/low for an instrument.
type Tick struct {
	Symbol    string          `json:"symbol"`
	LastDone  decimal.Decimal `json:"last_done"`
	Volume    int64           `json:"volume"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Timestamp time.Time       `json:"timestamp"`
}

// DepthLevel holds a price/quantity pair for one side of the book.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Depth carries the best bid/ask reported by the gateway for a symbol.
type Depth struct {
	Symbol string     `json:"symbol"`
	Bid    DepthLevel `json:"bid"`
	Ask    DepthLevel `json:"ask"`
}

// QualifySymbol renders a lowercase ticker as an exchange-qualified symbol,
// e.g. "aapl" -> "AAPL.US".
func QualifySymbol(ticker string) string {
	return strings.ToUpper(ticker) + ExchangeSuffix
}

// TickerOf strips the exchange suffix and lowercases, the inverse of QualifySymbol.
func TickerOf(symbol string) string {
	return strings.ToLower(strings.TrimSuffix(symbol, ExchangeSuffix))
}
