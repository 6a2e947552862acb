package chain

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/options"
)

func strikes(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromInt(v))
	}
	return out
}

func TestNearTheMoneyIndex(t *testing.T) {
	chain := strikes(90, 95, 100, 105, 110)

	cases := []struct {
		name        string
		spot        string
		left, right int
	}{
		{"exact match", "100", 2, 2},
		{"between strikes", "97", 1, 2},
		{"below lowest", "85", -1, 0},
		{"above highest", "120", 4, 5},
		{"at lowest", "90", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, r := NearTheMoneyIndex(chain, decimal.RequireFromString(tc.spot))
			if l != tc.left || r != tc.right {
				t.Fatalf("spot %s: got (%d, %d), want (%d, %d)", tc.spot, l, r, tc.left, tc.right)
			}
		})
	}
}

func TestQuoteWindow(t *testing.T) {
	cases := []struct {
		name        string
		left, right int
		n, bias     int
		typ         options.Type
		total       int
		want        []int
	}{
		{"centered between strikes", 4, 5, 6, 0, options.TypeCall, 10, []int{2, 3, 4, 5, 6, 7}},
		{"exact match collapses bracket", 5, 5, 6, 0, options.TypeCall, 10, []int{3, 4, 5, 6, 7}},
		{"put bias extends low side", 4, 5, 4, 1, options.TypePut, 10, []int{2, 3, 4, 5, 6}},
		{"call bias extends high side", 4, 5, 4, 1, options.TypeCall, 10, []int{3, 4, 5, 6, 7}},
		{"spot below chain pins to edge", -1, 0, 6, 0, options.TypePut, 10, []int{0, 1, 2}},
		{"spot above chain pins to edge", 9, 10, 6, 0, options.TypeCall, 10, []int{7, 8, 9}},
		{"window wider than chain", 2, 2, 6, 0, options.TypeCall, 3, []int{0, 1, 2}},
		{"empty chain", 0, 0, 6, 0, options.TypeCall, 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := quoteWindow(tc.left, tc.right, tc.n, tc.bias, tc.typ, tc.total)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
