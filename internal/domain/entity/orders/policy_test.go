package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSizingPolicy(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want SizingPolicy
	}{
		{"nil defaults to minimal", nil, SizingPolicy{Kind: SizingMinimal}},
		{"empty string", "", SizingPolicy{Kind: SizingMinimal}},
		{"min", "min", SizingPolicy{Kind: SizingMinimal}},
		{"max", "max", SizingPolicy{Kind: SizingCashMax}},
		{"mmax", "mmax", SizingPolicy{Kind: SizingMarginMax}},
		{"numeric string", "3", SizingPolicy{Kind: SizingExact, Exact: decimal.NewFromInt(3)}},
		{"json number", float64(5), SizingPolicy{Kind: SizingExact, Exact: decimal.NewFromInt(5)}},
		{"int", 7, SizingPolicy{Kind: SizingExact, Exact: decimal.NewFromInt(7)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSizingPolicy(tc.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got.Kind != tc.want.Kind || !got.Exact.Equal(tc.want.Exact) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseSizingPolicyRejectsGarbage(t *testing.T) {
	if _, err := ParseSizingPolicy("plenty"); !errors.Is(err, ErrUnknownSizing) {
		t.Fatalf("got %v, want ErrUnknownSizing", err)
	}
	if _, err := ParseSizingPolicy(true); !errors.Is(err, ErrUnknownSizing) {
		t.Fatalf("got %v, want ErrUnknownSizing", err)
	}
}

func TestParseMoneyness(t *testing.T) {
	if m, err := ParseMoneyness(""); err != nil || m != MoneynessITM {
		t.Fatalf("empty: got %q, %v", m, err)
	}
	if m, err := ParseMoneyness("otm"); err != nil || m != MoneynessOTM {
		t.Fatalf("otm: got %q, %v", m, err)
	}
	if _, err := ParseMoneyness("atm"); !errors.Is(err, ErrUnknownMoneyness) {
		t.Fatalf("got %v, want ErrUnknownMoneyness", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusSubmitted: false,
		StatusFilled:    true,
		StatusCanceled:  true,
		StatusRejected:  true,
	} {
		if status.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}
