package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the storage and wire format of a calendar day.
const DayLayout = "2006-01-02"

// DailyMetricRecord is one stored value for (user, metric, calendar day). Leaf
// records accumulate until the product price changes; calculated records are
// overwritten on every recompute.
type DailyMetricRecord struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	MetricID     int64            `json:"metric_id"`
	ProductID    *int64           `json:"product_id,omitempty"`
	ProductPrice *decimal.Decimal `json:"product_price,omitempty"` // price fingerprint at submission
	Value        float64          `json:"value"`
	Day          time.Time        `json:"day"`
	BatchID      string           `json:"batch_id,omitempty"`
	Deleted      bool             `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SameFingerprint reports whether the stored price fingerprint matches price.
// Two absent prices match; an absent and a present price do not.
func (r *DailyMetricRecord) SameFingerprint(price *decimal.Decimal) bool {
	if r.ProductPrice == nil || price == nil {
		return r.ProductPrice == nil && price == nil
	}
	return r.ProductPrice.Equal(*price)
}

// Day truncates t to its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
