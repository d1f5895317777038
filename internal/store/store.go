// Package store persists companies, users, products, metrics, daily metric
// records and projections. Rows are soft-deleted; reads skip deleted rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/salestrack/internal/model"
)

// ErrNotFound is wrapped by every lookup of a missing or soft-deleted row.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MetricFilter specifies criteria for listing metrics. Empty fields do not filter.
type MetricFilter struct {
	IDs []int64 `json:"ids,omitempty"`
	// CompanyID keeps metrics attached to or owned by the company.
	CompanyID *int64 `json:"company_id,omitempty"`
	// IncludeDefault widens CompanyID to company-independent default metrics.
	IncludeDefault bool `json:"include_default,omitempty"`
	// OperandOf keeps calculated metrics whose value1 or value2 is in the list.
	OperandOf      []int64 `json:"operand_of,omitempty"`
	CalculatedOnly bool    `json:"calculated_only,omitempty"`
	Name           string  `json:"name,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	Offset         int     `json:"offset,omitempty"`
}

// DailyRecordFilter specifies criteria for listing daily metric records.
// From and To are inclusive calendar days; zero values are unbounded.
type DailyRecordFilter struct {
	UserID    *int64    `json:"user_id,omitempty"`
	MetricIDs []int64   `json:"metric_ids,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// ProjectionFilter specifies criteria for listing projections. From and To
// select projections whose [start, end] window overlaps [From, To].
type ProjectionFilter struct {
	UserID    *int64                 `json:"user_id,omitempty"`
	CompanyID *int64                 `json:"company_id,omitempty"`
	MetricIDs []int64                `json:"metric_ids,omitempty"`
	Period    model.Period           `json:"period,omitempty"`
	Status    model.ProjectionStatus `json:"status,omitempty"`
	From      time.Time              `json:"from,omitempty"`
	To        time.Time              `json:"to,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
	Offset    int                    `json:"offset,omitempty"`
}

// CompanyRepository persists tenants and their metric attachments.
type CompanyRepository interface {
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	AttachMetric(ctx context.Context, cm model.CompanyMetric) error
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// ProductRepository persists products and their current prices.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error
}

// MetricRepository persists metric definitions.
type MetricRepository interface {
	CreateMetric(ctx context.Context, m *model.Metric) error
	GetMetric(ctx context.Context, id int64) (*model.Metric, error)
	GetMetricByNameKey(ctx context.Context, key string) (*model.Metric, error)
	UpdateMetric(ctx context.Context, m *model.Metric) error
	ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error)
	DeleteMetric(ctx context.Context, id int64) error
}

// DailyRecordRepository persists daily metric records keyed by (user, metric, day).
type DailyRecordRepository interface {
	// LatestDailyRecord returns the newest live record for the key, or nil when none exists.
	LatestDailyRecord(ctx context.Context, userID, metricID int64, day time.Time) (*model.DailyMetricRecord, error)
	CreateDailyRecord(ctx context.Context, r *model.DailyMetricRecord) error
	UpdateDailyRecordValue(ctx context.Context, id int64, value float64) (*model.DailyMetricRecord, error)
	GetDailyRecord(ctx context.Context, id int64) (*model.DailyMetricRecord, error)
	ListDailyRecords(ctx context.Context, filter DailyRecordFilter) ([]model.DailyMetricRecord, error)
	CountDailyRecords(ctx context.Context, metricID int64) (int, error)
	SumDailyValues(ctx context.Context, userID, metricID int64, from, to time.Time) (float64, error)
	DeleteDailyRecord(ctx context.Context, id int64) error
}

// ProjectionRepository persists projections.
type ProjectionRepository interface {
	CreateProjection(ctx context.Context, p *model.Projection) error
	GetProjection(ctx context.Context, id int64) (*model.Projection, error)
	// ActiveProjection returns a live projection for (user, metric) that has
	// not ended before asOf, or nil when none exists.
	ActiveProjection(ctx context.Context, userID, metricID int64, asOf time.Time) (*model.Projection, error)
	ListProjections(ctx context.Context, filter ProjectionFilter) ([]model.Projection, error)
	UpdateProjection(ctx context.Context, p *model.Projection) error
	DeleteProjection(ctx context.Context, id int64) error
}

// Store is the full persistence interface.
type Store interface {
	CompanyRepository
	UserRepository
	ProductRepository
	MetricRepository
	DailyRecordRepository
	ProjectionRepository

	// WithTx runs fn inside one transaction. The Store passed to fn is bound to
	// the transaction; any error from fn rolls back every write made through it.
	// Calling WithTx on a transaction-bound Store reuses the open transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 1000

// ListAllMetrics pages through every metric matching filter. filter.Limit is
// the page size; Offset is ignored.
func ListAllMetrics(ctx context.Context, repo MetricRepository, filter MetricFilter) ([]model.Metric, error) {
	filter.Limit = listLimit(filter.Limit)
	filter.Offset = 0
	var all []model.Metric
	for {
		page, err := repo.ListMetrics(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
		filter.Offset += filter.Limit
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func nullablePrice(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func priceString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func operatorString(op *model.Operator) any {
	if op == nil {
		return nil
	}
	return string(*op)
}

func nullableOperator(s string) *model.Operator {
	if s == "" {
		return nil
	}
	op := model.Operator(s)
	return &op
}

func idOrNil(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
