// Package dashboard reduces daily actuals and active projections into
// per-metric revenue, expense and monthly summaries.
package dashboard

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/store"
)

// MonthKey selects how records are grouped into months.
type MonthKey string

const (
	// KeyYearMonth groups by calendar year and month ("2026-01").
	KeyYearMonth MonthKey = "year_month"
	// KeyMonth groups by month name only ("Jan"), merging the same month of
	// different years.
	KeyMonth MonthKey = "month"
)

const pageSize = 1000

// Filter selects the metrics and window of a dashboard. Zero From and To
// default to the trailing window ending today.
type Filter struct {
	CompanyID         *int64
	UserID            *int64
	MainMetricID      *int64
	SecondaryMetricID *int64
	From              time.Time
	To                time.Time
}

// MonthSummary is one month of a metric.
type MonthSummary struct {
	Key       string  `json:"key"`
	Label     string  `json:"label"`
	Actual    float64 `json:"actual"`
	Projected float64 `json:"projected"`
}

// Summary aggregates one metric over the window.
type Summary struct {
	MetricID          int64            `json:"metric_id"`
	MetricName        string           `json:"metric_name"`
	MetricType        model.MetricType `json:"metric_type"`
	IsDefault         bool             `json:"is_default"`
	IsMainMetric      bool             `json:"is_main_metric"`
	IsSecondaryMetric bool             `json:"is_secondary_metric"`
	RevenueGenerated  float64          `json:"revenue_generated"`
	Expenses          float64          `json:"expenses"`
	ProfitRatio       float64          `json:"profit_ratio"`
	Months            []MonthSummary   `json:"months"`
}

// Config tunes the aggregator.
type Config struct {
	WindowMonths int
	MonthKey     MonthKey
	Location     *time.Location
}

// Service builds dashboards.
type Service struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock that decides the default window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a dashboard service over st.
func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	if cfg.WindowMonths <= 0 {
		cfg.WindowMonths = 12
	}
	if cfg.MonthKey != KeyMonth {
		cfg.MonthKey = KeyYearMonth
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{store: st, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the inclusive day range the filter covers.
func (s *Service) Window(f Filter) (from, to time.Time) {
	to = model.Day(s.now(), s.cfg.Location)
	if !f.To.IsZero() {
		to = model.Day(f.To, time.UTC)
	}
	from = to.AddDate(0, -s.cfg.WindowMonths, 0)
	if !f.From.IsZero() {
		from = model.Day(f.From, time.UTC)
	}
	return from, to
}

// Get builds one Summary per candidate metric. It returns an empty slice when
// no metric matches the filter.
func (s *Service) Get(ctx context.Context, f Filter) ([]Summary, error) {
	from, to := s.Window(f)
	if from.After(to) {
		return nil, apperr.Validation(apperr.CodeInvalidInput,
			"dashboard window starts %s after it ends %s", from.Format(model.DayLayout), to.Format(model.DayLayout))
	}

	metricFilter := store.MetricFilter{CompanyID: f.CompanyID}
	for _, id := range []*int64{f.MainMetricID, f.SecondaryMetricID} {
		if id != nil {
			metricFilter.IDs = append(metricFilter.IDs, *id)
		}
	}
	metrics, err := store.ListAllMetrics(ctx, s.store, metricFilter)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: list metrics")
	}
	if len(metrics) == 0 {
		return []Summary{}, nil
	}

	ids := make([]int64, len(metrics))
	for i, m := range metrics {
		ids[i] = m.ID
	}

	var (
		records     []model.DailyMetricRecord
		projections []model.Projection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.dailyRecords(gctx, store.DailyRecordFilter{
			UserID: f.UserID, MetricIDs: ids, From: from, To: to,
		})
		return err
	})
	g.Go(func() error {
		var err error
		projections, err = s.projections(gctx, store.ProjectionFilter{
			UserID: f.UserID, MetricIDs: ids, Status: model.ProjectionActive, From: from, To: to,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := s.aggregate(metrics, records, projections, f)
	zap.L().Debug("dashboard: built",
		zap.Int("metrics", len(metrics)),
		zap.Int("records", len(records)),
		zap.Int("projections", len(projections)),
		zap.String("from", from.Format(model.DayLayout)),
		zap.String("to", to.Format(model.DayLayout)),
	)
	return summaries, nil
}

func (s *Service) dailyRecords(ctx context.Context, f store.DailyRecordFilter) ([]model.DailyMetricRecord, error) {
	var all []model.DailyMetricRecord
	f.Limit = pageSize
	for {
		page, err := s.store.ListDailyRecords(ctx, f)
		if err != nil {
			return nil, eris.Wrap(err, "dashboard: list daily records")
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		f.Offset += pageSize
	}
}

func (s *Service) projections(ctx context.Context, f store.ProjectionFilter) ([]model.Projection, error) {
	var all []model.Projection
	f.Limit = pageSize
	for {
		page, err := s.store.ListProjections(ctx, f)
		if err != nil {
			return nil, eris.Wrap(err, "dashboard: list projections")
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		f.Offset += pageSize
	}
}

type month struct {
	key   string
	label string
	first time.Time
}

type cell struct {
	actual, projected float64
}

func (s *Service) monthOf(day time.Time) month {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	if s.cfg.MonthKey == KeyMonth {
		label := first.Format("Jan")
		return month{key: label, label: label, first: first}
	}
	return month{key: first.Format("2006-01"), label: first.Format("Jan 2006"), first: first}
}

func (s *Service) aggregate(metrics []model.Metric, records []model.DailyMetricRecord, projections []model.Projection, f Filter) []Summary {
	months := make(map[string]month)
	cells := make(map[int64]map[string]*cell)
	revenue := make(map[int64]float64)
	expense := make(map[int64]float64)

	at := func(metricID int64, day time.Time) *cell {
		m := s.monthOf(day)
		if seen, ok := months[m.key]; !ok || m.first.Before(seen.first) {
			months[m.key] = m
		}
		byMonth, ok := cells[metricID]
		if !ok {
			byMonth = make(map[string]*cell)
			cells[metricID] = byMonth
		}
		c, ok := byMonth[m.key]
		if !ok {
			c = &cell{}
			byMonth[m.key] = c
		}
		return c
	}

	for _, r := range records {
		revenue[r.MetricID] += r.Value
		at(r.MetricID, r.Day).actual += r.Value
	}
	for _, p := range projections {
		expense[p.MetricID] += p.TargetValue
		at(p.MetricID, p.StartDate).projected += p.TargetValue
	}

	ordered := make([]month, 0, len(months))
	for _, m := range months {
		ordered = append(ordered, m)
	}
	slices.SortFunc(ordered, func(a, b month) int { return a.first.Compare(b.first) })

	out := make([]Summary, 0, len(metrics))
	for _, m := range metrics {
		sum := Summary{
			MetricID:          m.ID,
			MetricName:        m.Name,
			MetricType:        m.Type,
			IsDefault:         m.IsDefault,
			IsMainMetric:      f.MainMetricID != nil && *f.MainMetricID == m.ID,
			IsSecondaryMetric: f.SecondaryMetricID != nil && *f.SecondaryMetricID == m.ID,
			RevenueGenerated:  revenue[m.ID],
			Expenses:          expense[m.ID],
			ProfitRatio:       ProfitRatio(revenue[m.ID], expense[m.ID]),
			Months:            make([]MonthSummary, 0, len(ordered)),
		}
		for _, mo := range ordered {
			ms := MonthSummary{Key: mo.key, Label: mo.label}
			if c, ok := cells[m.ID][mo.key]; ok {
				ms.Actual = c.actual
				ms.Projected = c.projected
			}
			sum.Months = append(sum.Months, ms)
		}
		out = append(out, sum)
	}
	return out
}

// ProfitRatio is (revenue - expense) / expense in percent, or 0 without expense.
func ProfitRatio(revenue, expense float64) float64 {
	if expense <= 0 {
		return 0
	}
	return (revenue - expense) / expense * 100
}
