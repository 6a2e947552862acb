package longport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/orders"
	"longtrade/internal/domain/interfaces"
)

type submitOrderBody struct {
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          orders.Side      `json:"side"`
	Type          orders.OrderType `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         *decimal.Decimal `json:"price,omitempty"`
}

type orderDetailDTO struct {
	OrderID       string          `json:"order_id"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	Quantity      decimal.Decimal `json:"quantity"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

func (c *Client) SubmitOrder(ctx context.Context, req interfaces.SubmitOrderRequest) (string, error) {
	body := submitOrderBody{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/order", nil, body, &out); err != nil {
		return "", fmt.Errorf("submit order %s: %w", req.Symbol, err)
	}
	c.logger.WithFields(map[string]any{
		"order_id": out.OrderID,
		"symbol":   req.Symbol,
		"side":     req.Side,
	}).Info("order submitted")
	return out.OrderID, nil
}

func (c *Client) OrderDetail(ctx context.Context, orderID string) (interfaces.OrderDetail, error) {
	var dto orderDetailDTO
	if err := c.get(ctx, "/v1/order/"+url.PathEscape(orderID), nil, &dto); err != nil {
		return interfaces.OrderDetail{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return interfaces.OrderDetail{
		OrderID:       dto.OrderID,
		Symbol:        dto.Symbol,
		Name:          dto.Name,
		Status:        parseOrderStatus(dto.Status),
		Quantity:      dto.Quantity,
		ExecutedPrice: dto.ExecutedPrice,
		SubmittedAt:   dto.SubmittedAt,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/order/"+url.PathEscape(orderID), nil, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) ReplaceOrder(ctx context.Context, orderID string, quantity, price decimal.Decimal) error {
	body := struct {
		Quantity decimal.Decimal `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	}{Quantity: quantity, Price: price}
	if err := c.do(ctx, http.MethodPut, "/v1/order/"+url.PathEscape(orderID), nil, body, nil); err != nil {
		return fmt.Errorf("replace order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) EstimateMaxPurchaseQuantity(ctx context.Context, symbol string, side orders.Side) (interfaces.PurchaseEstimate, error) {
	var out struct {
		CashMax   decimal.Decimal `json:"cash_max"`
		MarginMax decimal.Decimal `json:"margin_max"`
	}
	q := url.Values{
		"symbol": {symbol},
		"side":   {string(side)},
	}
	if err := c.get(ctx, "/v1/order/estimate", q, &out); err != nil {
		return interfaces.PurchaseEstimate{}, err
	}
	return interfaces.PurchaseEstimate{CashMax: out.CashMax, MarginMax: out.MarginMax}, nil
}

func (c *Client) ListPositions(ctx context.Context) ([]interfaces.Position, error) {
	var out struct {
		Positions []struct {
			Symbol    string          `json:"symbol"`
			Name      string          `json:"name"`
			Quantity  decimal.Decimal `json:"quantity"`
			CostPrice decimal.Decimal `json:"cost_price"`
		} `json:"positions"`
	}
	if err := c.get(ctx, "/v1/positions", nil, &out); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	positions := make([]interfaces.Position, 0, len(out.Positions))
	for _, p := range out.Positions {
		positions = append(positions, interfaces.Position{
			Symbol:    p.Symbol,
			Name:      p.Name,
			Quantity:  p.Quantity,
			CostPrice: p.CostPrice,
		})
	}
	return positions, nil
}

// parseOrderStatus folds the venue's status vocabulary into the four states
// the tracker distinguishes. Anything in-flight maps to submitted.
func parseOrderStatus(raw string) orders.Status {
	switch strings.ToLower(raw) {
	case "filled", "partial_filled_done":
		return orders.StatusFilled
	case "canceled", "cancelled":
		return orders.StatusCanceled
	case "rejected", "expired":
		return orders.StatusRejected
	default:
		return orders.StatusSubmitted
	}
}
