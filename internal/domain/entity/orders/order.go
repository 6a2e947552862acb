package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/options"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status is the lifecycle state of an order. Submitted transitions at most
// once to one of the terminal states; terminal states never change again.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusCanceled  Status = "canceled"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderTypeMarket OrderType = "MO"
	OrderTypeLimit  OrderType = "LO"
)

// Record is one entry of a position stack. A filled buy at the top of its
// stack is the open position; a sell closing it stays in the stack for audit.
type Record struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Ticker      string          `json:"tk"`
	OptionType  options.Type    `json:"option"`
	Side        Side            `json:"side"`
	Status      Status          `json:"status"`
	Quantity    decimal.Decimal `json:"qty"`
	ExecPrice   decimal.Decimal `json:"exec_price"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Profit      decimal.Decimal `json:"profit"`
	SubmittedAt time.Time       `json:"time"`
}
