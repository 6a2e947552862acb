package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/orders"
)

// ErrNotTradable is returned by EstimateMaxPurchaseQuantity when the
// instrument cannot be sized for purchase. Callers treat it as "try the next
// candidate", never as a user-facing failure.
var ErrNotTradable = errors.New("instrument not tradable")

// SubmitOrderRequest carries everything the broker needs for a new order.
// Price is nil for market orders. ClientOrderID makes resubmission after a
// transport fault idempotent at the venue.
type SubmitOrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          orders.Side
	Type          orders.OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
}

// OrderDetail is the authoritative broker-side view of a submitted order.
type OrderDetail struct {
	OrderID       string
	Symbol        string
	Name          string
	Status        orders.Status
	Quantity      decimal.Decimal
	ExecutedPrice decimal.Decimal
	SubmittedAt   time.Time
}

// PurchaseEstimate is the broker's answer to how much of a symbol is buyable.
type PurchaseEstimate struct {
	CashMax   decimal.Decimal
	MarginMax decimal.Decimal
}

// Position is one broker-reported holding.
type Position struct {
	Symbol    string
	Name      string
	Quantity  decimal.Decimal
	CostPrice decimal.Decimal
}

// TradeService is the boundary to the external trade-execution venue.
type TradeService interface {
	SubmitOrder(ctx context.Context, req SubmitOrderRequest) (orderID string, err error)
	OrderDetail(ctx context.Context, orderID string) (OrderDetail, error)
	CancelOrder(ctx context.Context, orderID string) error
	ReplaceOrder(ctx context.Context, orderID string, quantity decimal.Decimal, price decimal.Decimal) error
	EstimateMaxPurchaseQuantity(ctx context.Context, symbol string, side orders.Side) (PurchaseEstimate, error)
	ListPositions(ctx context.Context) ([]Position, error)
}
