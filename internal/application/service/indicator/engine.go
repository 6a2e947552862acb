// Package indicator derives streaming per-ticker indicators from push ticks:
// a normalized price delta over a fixed sliding window, a bounded resistance
// oscillator that grows on direction reversals and decays on sustained moves,
// a short-vs-long window drift, and the tick volume delta.
package indicator

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"longtrade/internal/domain/entity/market"
)

// DefaultMemory is the sliding-window length used when the config leaves it unset.
const DefaultMemory = 50

var ErrUnknownTicker = errors.New("ticker not in configured universe")

var (
	two           = decimal.NewFromInt(2)
	maxResistance = decimal.NewFromInt(30)
)

// Snapshot is the read-only view of one ticker's indicator state.
type Snapshot struct {
	Ticker      string          `json:"tk"`
	Delta       decimal.Decimal `json:"p"`
	Resistance  decimal.Decimal `json:"r"`
	VolumeDelta int64           `json:"vol"`
	Drift       decimal.Decimal `json:"diff"`
	LocalMax    bool            `json:"max"`
	LocalMin    bool            `json:"min"`
}

// state is the per-ticker mutable indicator state. Each state carries its own
// lock so unrelated tickers never serialize on each other.
type state struct {
	mu sync.Mutex

	// window holds exactly `memory` normalized deltas, oldest first. It
	// starts as all zeros, so the first `memory` ticks compare against
	// synthetic zeros. That warm-up bias is deliberate and must stay.
	window   []decimal.Decimal
	refClose decimal.Decimal

	prevVolume int64
	volume     int64

	resistance decimal.Decimal
	drift      decimal.Decimal
	localMax   bool
	localMin   bool
}

// Engine owns the indicator state for a fixed universe of tickers. States are
// created once at construction and live for the process lifetime.
type Engine struct {
	memory  int
	tickers []string
	states  map[string]*state
}

func NewEngine(tickers []string, memory int) *Engine {
	if memory <= 2 {
		memory = DefaultMemory
	}
	states := make(map[string]*state, len(tickers))
	for _, tk := range tickers {
		window := make([]decimal.Decimal, memory)
		for i := range window {
			window[i] = decimal.Zero
		}
		states[tk] = &state{window: window}
	}
	return &Engine{
		memory:  memory,
		tickers: append([]string(nil), tickers...),
		states:  states,
	}
}

// SetReferenceClose fixes the per-ticker close that every delta is computed
// against. Selected once at startup: the prior session's close while the
// market is open, the last trade otherwise.
func (e *Engine) SetReferenceClose(ticker string, close decimal.Decimal) error {
	st, ok := e.states[ticker]
	if !ok {
		return ErrUnknownTicker
	}
	st.mu.Lock()
	st.refClose = close
	st.mu.Unlock()
	return nil
}

// HandleTick consumes one push tick. It is the only mutator of indicator
// state. Ticks for symbols outside the universe are dropped.
func (e *Engine) HandleTick(tick market.Tick) {
	st, ok := e.states[market.TickerOf(tick.Symbol)]
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	delta := tick.LastDone.Sub(st.refClose).Round(3)

	n := len(st.window)
	d1 := delta.Sub(st.window[n-1])
	d2 := st.window[n-1].Sub(st.window[n-2])

	st.prevVolume = st.volume
	st.volume = tick.Volume

	// Extremes are judged against the window before the push.
	lo, hi := windowExtremes(st.window)
	st.localMax = delta.GreaterThan(hi)
	st.localMin = delta.LessThan(lo)

	copy(st.window, st.window[1:])
	st.window[n-1] = delta

	st.drift = meanOfTail(st.window, 3).Sub(meanOfHead(st.window, 3)).Round(2)

	if d1.Mul(d2).Sign() <= 0 {
		// Reversal or flat: resistance builds by the move size, capped.
		st.resistance = st.resistance.Add(d1.Abs())
		if st.resistance.GreaterThan(maxResistance) {
			st.resistance = maxResistance
		}
	} else {
		// Continuation: decay toward zero, faster for larger moves.
		st.resistance = st.resistance.Mul(two).Div(d1.Abs().Add(two))
	}
}

// Snapshot returns the current indicator view for one ticker.
func (e *Engine) Snapshot(ticker string) (Snapshot, error) {
	st, ok := e.states[ticker]
	if !ok {
		return Snapshot{}, ErrUnknownTicker
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{
		Ticker:      ticker,
		Delta:       st.window[len(st.window)-1],
		Resistance:  st.resistance,
		VolumeDelta: st.volume - st.prevVolume,
		Drift:       st.drift,
		LocalMax:    st.localMax,
		LocalMin:    st.localMin,
	}, nil
}

// SnapshotAll returns snapshots in configured universe order.
func (e *Engine) SnapshotAll() []Snapshot {
	out := make([]Snapshot, 0, len(e.tickers))
	for _, tk := range e.tickers {
		snap, err := e.Snapshot(tk)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Tickers returns the configured universe in order.
func (e *Engine) Tickers() []string {
	return append([]string(nil), e.tickers...)
}

func windowExtremes(w []decimal.Decimal) (lo, hi decimal.Decimal) {
	lo, hi = w[0], w[0]
	for _, v := range w[1:] {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	return lo, hi
}

func meanOfHead(w []decimal.Decimal, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range w[:n] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

func meanOfTail(w []decimal.Decimal, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range w[len(w)-n:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
