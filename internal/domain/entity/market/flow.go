package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalFlowPoint is one entry of the intraday net inflow series.
type CapitalFlowPoint struct {
	Inflow    decimal.Decimal `json:"inflow"`
	Timestamp time.Time       `json:"timestamp"`
}

// CapitalBucket splits traded capital by order size.
type CapitalBucket struct {
	Large  decimal.Decimal `json:"large"`
	Medium decimal.Decimal `json:"medium"`
	Small  decimal.Decimal `json:"small"`
}

// CapitalDistribution reports inbound and outbound capital per bucket.
type CapitalDistribution struct {
	In  CapitalBucket `json:"in"`
	Out CapitalBucket `json:"out"`
}
