package chain

import (
	"context"
	"fmt"
	"time"

	"longtrade/internal/domain/entity/market"
)

// NextExpiry picks the weekly expiry date traded by the service: this Friday
// when today is Monday or Tuesday, the following Friday otherwise. The
// returned time keeps only the date.
func NextExpiry(today time.Time) time.Time {
	wd := (int(today.Weekday()) + 6) % 7 // Monday = 0
	days := 4 - wd
	if wd > 1 {
		days += 7
	}
	d := today.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveExpiry checks the computed weekly expiry against the dates the venue
// actually lists and returns the earliest listed date on or after it, so a
// holiday Friday rolls to the next listed expiry. An empty listing falls back
// to the computed date.
func (s *Service) ResolveExpiry(ctx context.Context, ticker string) (time.Time, error) {
	target := NextExpiry(time.Now())
	dates, err := s.feed.OptionChainExpiries(ctx, market.QualifySymbol(ticker))
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch expiry dates: %w", err)
	}
	var best time.Time
	for _, d := range dates {
		if d.Before(target) {
			continue
		}
		if best.IsZero() || d.Before(best) {
			best = d
		}
	}
	if best.IsZero() {
		return target, nil
	}
	return best, nil
}
