package model

import "time"

// Period is the cadence a projection target covers.
type Period string

const (
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// ProjectionStatus marks whether a projection counts toward dashboards.
type ProjectionStatus string

const (
	ProjectionActive   ProjectionStatus = "ACTIVE"
	ProjectionInactive ProjectionStatus = "INACTIVE"
)

// Projection is a target value for a (user, metric) pair over [StartDate, EndDate].
type Projection struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	MetricID    int64            `json:"metric_id"`
	CompanyID   *int64           `json:"company_id,omitempty"`
	Period      Period           `json:"period"`
	TargetValue float64          `json:"target_value"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	Status      ProjectionStatus `json:"status"`
	Deleted     bool             `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ActiveOn reports whether the projection has not ended before day.
func (p *Projection) ActiveOn(day time.Time) bool {
	return !p.Deleted && !p.EndDate.Before(day)
}
