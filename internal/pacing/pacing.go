// Package pacing reports how far ahead of or behind a time-bound target a
// user is, by extrapolating progress so far across the whole window.
package pacing

import (
	"math"
	"time"
)

// Result is the outcome of a pacing computation.
type Result struct {
	// PacingRate is the average progress per elapsed day.
	PacingRate float64 `json:"pacing_rate"`
	// ProjectedTotal extrapolates PacingRate over the whole window.
	ProjectedTotal float64 `json:"projected_total"`
	// PacingPercentage is the shortfall against target in percent. Negative
	// values mean the user is ahead of pace.
	PacingPercentage float64 `json:"pacing_percentage"`
}

// Compute derives pacing for progress made over elapsedDays of a window that
// lasts totalDays. Day counts below 1 are treated as 1, and a zero target
// yields a PacingPercentage of 0.
func Compute(target, progress float64, totalDays, elapsedDays int) Result {
	elapsedDays = max(elapsedDays, 1)
	totalDays = max(totalDays, 1)

	rate := progress / float64(elapsedDays)
	projected := rate * float64(totalDays)

	var pct float64
	if target != 0 {
		pct = (target - projected) / target * 100
	}
	return Result{
		PacingRate:       finite(rate),
		ProjectedTotal:   finite(projected),
		PacingPercentage: finite(pct),
	}
}

// Window counts the days of [start, end] and how many of them have passed by
// now, both inclusive. Elapsed days are clamped to [1, totalDays].
func Window(start, end, now time.Time) (totalDays, elapsedDays int) {
	start = truncateDay(start)
	end = truncateDay(end)
	now = truncateDay(now)

	totalDays = max(daysBetween(start, end)+1, 1)
	elapsedDays = min(max(daysBetween(start, now)+1, 1), totalDays)
	return totalDays, elapsedDays
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
