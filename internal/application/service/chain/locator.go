package chain

import (
	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/options"
)

// NearTheMoneyIndex binary-searches strike-ascending values for the pair
// bracketing spot. On an exact match both indices are equal. When spot lies
// below the lowest strike the result is (-1, 0); above the highest it is
// (len-1, len). Callers clamp before indexing.
func NearTheMoneyIndex(strikes []decimal.Decimal, spot decimal.Decimal) (int, int) {
	left, right := 0, len(strikes)-1
	for left <= right {
		mid := (left + right) / 2
		switch strikes[mid].Cmp(spot) {
		case 0:
			return mid, mid
		case -1:
			left = mid + 1
		default:
			right = mid - 1
		}
	}
	return right, left
}

// quoteWindow selects the contract indices to quote live: n contracts split
// around the bracketing pair, with `bias` extra contracts added on the
// out-of-the-money side (below spot for puts, above for calls). Indices
// outside [0, total) are clamped away and duplicates collapsed, so a spot
// beyond the listed strikes yields a window pinned to the chain edge.
func quoteWindow(left, right, n, bias int, typ options.Type, total int) []int {
	if total == 0 || n <= 0 {
		return nil
	}
	low := n / 2
	high := n - low
	if typ == options.TypePut {
		low += bias
	} else {
		high += bias
	}

	out := make([]int, 0, low+high)
	push := func(i int) {
		if i < 0 {
			i = 0
		}
		if i > total-1 {
			i = total - 1
		}
		if len(out) == 0 || out[len(out)-1] != i {
			out = append(out, i)
		}
	}
	for i := left - low + 1; i <= left; i++ {
		push(i)
	}
	for i := right; i < right+high; i++ {
		push(i)
	}
	return out
}
