// Package calendar answers whether the US equity session is open: regular
// hours, weekdays, minus exchange holidays.
package calendar

import (
	"fmt"
	"time"
)

const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Full-day NYSE closures. Half days are treated as open.
var holidays = map[string]struct{}{
	"2025-01-01": {}, "2025-01-20": {}, "2025-02-17": {}, "2025-04-18": {},
	"2025-05-26": {}, "2025-06-19": {}, "2025-07-04": {}, "2025-09-01": {},
	"2025-11-27": {}, "2025-12-25": {},
	"2026-01-01": {}, "2026-01-19": {}, "2026-02-16": {}, "2026-04-03": {},
	"2026-05-25": {}, "2026-06-19": {}, "2026-07-03": {}, "2026-09-07": {},
	"2026-11-26": {}, "2026-12-25": {},
	"2027-01-01": {}, "2027-01-18": {}, "2027-02-15": {}, "2027-03-26": {},
	"2027-05-31": {}, "2027-06-18": {}, "2027-07-05": {}, "2027-09-06": {},
	"2027-11-25": {}, "2027-12-24": {},
}

// Calendar implements the market-calendar boundary for NYSE regular hours.
type Calendar struct {
	loc *time.Location
}

func NewUS() (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load eastern timezone: %w", err)
	}
	return &Calendar{loc: loc}, nil
}

// Location is the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) TradingNow() bool {
	return c.TradingAt(time.Now())
}

func (c *Calendar) TradingAt(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, closed := holidays[local.Format("2006-01-02")]; closed {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= openHour*60+openMinute && minutes <= closeHour*60+closeMinute
}
