package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"longtrade/internal/domain/entity/options"
)

const tolerance = 1e-4

func TestEvaluateCallAtTheMoney(t *testing.T) {
	// S=100, K=100, T=1, r=5%, vol=20%: the textbook reference case.
	res, err := Evaluate(Input{
		Spot: 100, Strike: 100, TimeYears: 1, Rate: 0.05, Vol: 0.2,
		Type: options.TypeCall,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(res.Price-10.4506) > tolerance {
		t.Fatalf("call price = %.4f, want 10.4506", res.Price)
	}
	if math.Abs(res.Delta-0.6368) > tolerance {
		t.Fatalf("call delta = %.4f, want 0.6368", res.Delta)
	}
	if math.Abs(res.Vega-37.5240) > tolerance {
		t.Fatalf("vega = %.4f, want 37.5240", res.Vega)
	}
	if res.Theta >= 0 {
		t.Fatalf("call theta = %.4f, want negative", res.Theta)
	}
}

func TestPutCallParity(t *testing.T) {
	in := Input{Spot: 98.7, Strike: 105, TimeYears: 0.35, Rate: 0.045, Vol: 0.31}

	in.Type = options.TypeCall
	call, err := Evaluate(in)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	in.Type = options.TypePut
	put, err := Evaluate(in)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	lhs := call.Price - put.Price
	rhs := in.Spot - in.Strike*math.Exp(-in.Rate*in.TimeYears)
	if math.Abs(lhs-rhs) > 1e-9 {
		t.Fatalf("parity violated: C-P = %.10f, S-Ke^-rT = %.10f", lhs, rhs)
	}
	if math.Abs((call.Delta-put.Delta)-1) > 1e-9 {
		t.Fatalf("delta gap = %.10f, want 1", call.Delta-put.Delta)
	}
	if math.Abs(call.Vega-put.Vega) > 1e-9 {
		t.Fatalf("vega must match across sides")
	}
}

func TestEvaluateRejectsDegenerateInputs(t *testing.T) {
	base := Input{Spot: 100, Strike: 100, TimeYears: 0.5, Rate: 0.05, Vol: 0.2}

	cases := []struct {
		name   string
		mutate func(*Input)
		want   error
	}{
		{"zero spot", func(in *Input) { in.Spot = 0 }, ErrNonPositiveSpot},
		{"negative strike", func(in *Input) { in.Strike = -1 }, ErrNonPositiveStrike},
		{"expired", func(in *Input) { in.TimeYears = 0 }, ErrNonPositiveExpiry},
		{"zero vol", func(in *Input) { in.Vol = 0 }, ErrNonPositiveVol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			if _, err := Evaluate(in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestYearsUntil(t *testing.T) {
	now := time.Date(2026, 9, 1, 16, 0, 0, 0, time.UTC)
	expiry := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	// Expiry counts to 16:00 on the expiry date: exactly three days out.
	got := YearsUntil(expiry, now)
	want := 3.0 / 365.0
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %.12f, want %.12f", got, want)
	}
}
