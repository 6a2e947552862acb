package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SizingKind enumerates how the purchase quantity is derived from the
// broker's max-purchase estimate.
type SizingKind int

const (
	// SizingMinimal buys a single contract if cash allows it.
	SizingMinimal SizingKind = iota
	// SizingCashMax buys the cash-affordable maximum.
	SizingCashMax
	// SizingMarginMax buys the margin-affordable maximum.
	SizingMarginMax
	// SizingExact buys a fixed quantity capped at the cash-affordable maximum.
	SizingExact
)

// SizingPolicy is a tagged variant: Exact is meaningful only for SizingExact.
type SizingPolicy struct {
	Kind  SizingKind
	Exact decimal.Decimal
}

var ErrUnknownSizing = errors.New("unknown sizing policy")

// ParseSizingPolicy maps the wire encoding ("min" | "max" | "mmax" | integer)
// onto a tagged policy.
func ParseSizingPolicy(raw any) (SizingPolicy, error) {
	switch v := raw.(type) {
	case nil:
		return SizingPolicy{Kind: SizingMinimal}, nil
	case string:
		switch v {
		case "", "min":
			return SizingPolicy{Kind: SizingMinimal}, nil
		case "max":
			return SizingPolicy{Kind: SizingCashMax}, nil
		case "mmax":
			return SizingPolicy{Kind: SizingMarginMax}, nil
		}
		n, err := decimal.NewFromString(v)
		if err != nil {
			return SizingPolicy{}, fmt.Errorf("%w: %q", ErrUnknownSizing, v)
		}
		return SizingPolicy{Kind: SizingExact, Exact: n}, nil
	case float64:
		return SizingPolicy{Kind: SizingExact, Exact: decimal.NewFromFloat(v)}, nil
	case int:
		return SizingPolicy{Kind: SizingExact, Exact: decimal.NewFromInt(int64(v))}, nil
	default:
		return SizingPolicy{}, fmt.Errorf("%w: %T", ErrUnknownSizing, raw)
	}
}

// Moneyness selects which half of the near-the-money window candidate
// contracts are drawn from.
type Moneyness string

const (
	MoneynessITM Moneyness = "itm"
	MoneynessOTM Moneyness = "otm"
)

var ErrUnknownMoneyness = errors.New("unknown moneyness policy")

// ParseMoneyness validates the wire encoding of a moneyness policy.
func ParseMoneyness(raw string) (Moneyness, error) {
	switch raw {
	case "", string(MoneynessITM):
		return MoneynessITM, nil
	case string(MoneynessOTM):
		return MoneynessOTM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMoneyness, raw)
}
