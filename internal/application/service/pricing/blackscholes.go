// Package pricing values option contracts with the closed-form model. The
// engine is stateless: spot, strike, time, rate and volatility are all
// caller-supplied and no calibration happens here.
package pricing

import (
	"errors"
	"math"
	"time"

	gaussian "github.com/chobie/go-gaussian"

	"longtrade/internal/domain/entity/options"
)

const daysPerYear = 365.0

var (
	ErrNonPositiveSpot   = errors.New("spot must be positive")
	ErrNonPositiveStrike = errors.New("strike must be positive")
	ErrNonPositiveExpiry = errors.New("time to expiry must be positive")
	ErrNonPositiveVol    = errors.New("volatility must be positive")
)

// Input is one valuation request. TimeYears is the time to expiry as a year
// fraction, Vol the annualized implied volatility.
type Input struct {
	Spot      float64
	Strike    float64
	TimeYears float64
	Rate      float64
	Vol       float64
	Type      options.Type
}

// Result carries the theoretical value and Greeks. Theta is per calendar day.
type Result struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

var stdNormal = gaussian.NewGaussian(0, 1)

// Evaluate prices one contract. The formula is undefined at T <= 0 or
// vol <= 0, so those inputs are rejected at the boundary.
func Evaluate(in Input) (Result, error) {
	switch {
	case in.Spot <= 0:
		return Result{}, ErrNonPositiveSpot
	case in.Strike <= 0:
		return Result{}, ErrNonPositiveStrike
	case in.TimeYears <= 0:
		return Result{}, ErrNonPositiveExpiry
	case in.Vol <= 0:
		return Result{}, ErrNonPositiveVol
	}

	sqrtT := math.Sqrt(in.TimeYears)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.TimeYears) / (in.Vol * sqrtT)
	d2 := d1 - in.Vol*sqrtT

	discount := math.Exp(-in.Rate * in.TimeYears)
	call := in.Spot*stdNormal.Cdf(d1) - in.Strike*discount*stdNormal.Cdf(d2)

	var res Result
	phi := stdNormal.Pdf(d1)
	res.Vega = in.Spot * phi * sqrtT

	timeDecay := -in.Spot * phi * in.Vol / (2 * sqrtT)
	switch in.Type {
	case options.TypePut:
		// Put value via put-call parity.
		res.Price = call - in.Spot + in.Strike*discount
		res.Delta = stdNormal.Cdf(d1) - 1
		res.Theta = (timeDecay + in.Rate*in.Strike*discount*stdNormal.Cdf(-d2)) / daysPerYear
	default:
		res.Price = call
		res.Delta = stdNormal.Cdf(d1)
		res.Theta = (timeDecay - in.Rate*in.Strike*discount*stdNormal.Cdf(d2)) / daysPerYear
	}
	return res, nil
}

// YearsUntil converts an expiry date into the year fraction expected by
// Evaluate. Expiries are treated as end-of-day.
func YearsUntil(expiry time.Time, now time.Time) float64 {
	end := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 16, 0, 0, 0, now.Location())
	return end.Sub(now).Hours() / 24 / daysPerYear
}
