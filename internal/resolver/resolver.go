// Package resolver turns one day's batch of submitted leaf metric values into
// stored daily records and recomputes every calculated metric that depends on
// them, transitively, inside a single transaction.
package resolver

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/metric"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/resilience"
	"github.com/sells-group/salestrack/internal/store"
)

// DefaultMaxDepth bounds the number of dependency sweeps per batch.
const DefaultMaxDepth = 16

// Entry is one submitted value for a leaf metric.
type Entry struct {
	MetricID  int64   `json:"metric_id" validate:"required,gt=0"`
	Value     float64 `json:"value"`
	ProductID *int64  `json:"product_id,omitempty" validate:"omitempty,gt=0"`
}

// SubmitRequest is a batch of entries for one user and one calendar day.
// Day is a calendar day taken as given, whatever its location. Date is an
// instant placed on a day in the configured location. With both zero the
// batch falls on today.
type SubmitRequest struct {
	UserID  int64
	Day     time.Time
	Date    time.Time
	Entries []Entry
}

// Config tunes the resolver.
type Config struct {
	// MaxDepth is the maximum number of dependency sweeps. Default: 16.
	MaxDepth int
	// Location decides which calendar day a submission falls on. Default: UTC.
	Location *time.Location
	Retry    resilience.RetryConfig
}

// Service resolves daily metric submissions.
type Service struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for requests without a date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a resolver over st.
func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("resolver: submit")
	}
	s := &Service{store: st, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit persists req and returns every created or updated record, leaf
// records first in submission order, then calculated records in dependency
// order. Either all writes of the batch persist or none do. An empty batch
// returns an empty result without touching the store.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) ([]model.DailyMetricRecord, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if len(req.Entries) == 0 {
		return []model.DailyMetricRecord{}, nil
	}

	b := &batch{
		id:     uuid.NewString(),
		userID: req.UserID,
		day:    s.day(req),
	}

	records, err := resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) ([]model.DailyMetricRecord, error) {
		b.reset()
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			return s.resolve(ctx, tx, b, req.Entries)
		})
		return b.records, err
	})
	if err != nil {
		zap.L().Warn("resolver: batch rejected",
			zap.Int64("user_id", req.UserID),
			zap.String("batch_id", b.id),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("resolver: batch stored",
		zap.Int64("user_id", req.UserID),
		zap.String("batch_id", b.id),
		zap.String("day", b.day.Format(model.DayLayout)),
		zap.Int("entries", len(req.Entries)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (s *Service) day(req SubmitRequest) time.Time {
	switch {
	case !req.Day.IsZero():
		return model.Day(req.Day, req.Day.Location())
	case !req.Date.IsZero():
		return model.Day(req.Date, s.cfg.Location)
	default:
		return model.Day(s.now(), s.cfg.Location)
	}
}

func validate(req SubmitRequest) error {
	if req.UserID <= 0 {
		return apperr.Validation(apperr.CodeInvalidInput, "user id must be positive")
	}
	for i, e := range req.Entries {
		if e.MetricID <= 0 {
			return apperr.Validation(apperr.CodeInvalidInput, "entry %d: metric id must be positive", i)
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return apperr.Validation(apperr.CodeInvalidInput, "entry %d: value must be a finite number", i)
		}
		if e.ProductID != nil && *e.ProductID <= 0 {
			return apperr.Validation(apperr.CodeInvalidInput, "entry %d: product id must be positive", i)
		}
	}
	return nil
}

// batch is the state of one submission attempt.
type batch struct {
	id     string
	userID int64
	day    time.Time

	// values holds the batch-local value of every metric touched so far.
	values  map[int64]float64
	records []model.DailyMetricRecord
	index   map[int64]int
	leaves  []int64
}

func (b *batch) reset() {
	b.values = make(map[int64]float64)
	b.records = nil
	b.index = make(map[int64]int)
	b.leaves = nil
}

// keep records r in the result, replacing an earlier version of the same row.
func (b *batch) keep(r *model.DailyMetricRecord) {
	if i, ok := b.index[r.ID]; ok {
		b.records[i] = *r
		return
	}
	b.index[r.ID] = len(b.records)
	b.records = append(b.records, *r)
}

func (s *Service) resolve(ctx context.Context, tx store.Store, b *batch, entries []Entry) error {
	if _, err := tx.GetUser(ctx, b.userID); err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFound(apperr.CodeUserNotFound, "user %d not found", b.userID)
		}
		return eris.Wrapf(err, "resolver: get user %d", b.userID)
	}

	seen := make(map[int64]bool)
	for _, e := range entries {
		if err := s.storeLeaf(ctx, tx, b, e); err != nil {
			return err
		}
		if !seen[e.MetricID] {
			seen[e.MetricID] = true
			b.leaves = append(b.leaves, e.MetricID)
		}
	}

	affected, err := s.affected(ctx, tx, b.leaves)
	if err != nil {
		return err
	}
	return s.storeDerived(ctx, tx, b, affected)
}

// storeLeaf merges e into today's record for its metric, or starts a new
// record when there is none or the product price has changed since.
func (s *Service) storeLeaf(ctx context.Context, tx store.Store, b *batch, e Entry) error {
	m, err := tx.GetMetric(ctx, e.MetricID)
	if err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFound(apperr.CodeMetricNotFound, "metric %d not found", e.MetricID)
		}
		return eris.Wrapf(err, "resolver: get metric %d", e.MetricID)
	}
	if !metric.IsLeaf(m) {
		return apperr.Validation(apperr.CodeNotALeafMetric,
			"metric %d is calculated and does not accept submissions", e.MetricID)
	}

	var price *decimal.Decimal
	if e.ProductID != nil {
		p, err := tx.GetProduct(ctx, *e.ProductID)
		if err != nil {
			if store.IsNotFound(err) {
				return apperr.NotFound(apperr.CodeProductNotFound, "product %d not found", *e.ProductID)
			}
			return eris.Wrapf(err, "resolver: get product %d", *e.ProductID)
		}
		price = &p.Price
	}

	existing, err := tx.LatestDailyRecord(ctx, b.userID, m.ID, b.day)
	if err != nil {
		return eris.Wrapf(err, "resolver: latest record for metric %d", m.ID)
	}

	if existing != nil && existing.SameFingerprint(price) {
		updated, err := tx.UpdateDailyRecordValue(ctx, existing.ID, existing.Value+e.Value)
		if err != nil {
			return eris.Wrapf(err, "resolver: merge into record %d", existing.ID)
		}
		b.values[m.ID] = updated.Value
		b.keep(updated)
		return nil
	}

	r := &model.DailyMetricRecord{
		UserID:       b.userID,
		MetricID:     m.ID,
		ProductID:    e.ProductID,
		ProductPrice: price,
		Value:        e.Value,
		Day:          b.day,
		BatchID:      b.id,
	}
	if err := tx.CreateDailyRecord(ctx, r); err != nil {
		return eris.Wrapf(err, "resolver: create record for metric %d", m.ID)
	}
	b.values[m.ID] = r.Value
	b.keep(r)
	return nil
}

// affected returns every live calculated metric that depends on ids, directly
// or through other calculated metrics, in evaluation order.
func (s *Service) affected(ctx context.Context, tx store.Store, ids []int64) ([]model.Metric, error) {
	found := make(map[int64]model.Metric)
	frontier := ids
	for depth := 0; len(frontier) > 0; depth++ {
		dependents, err := store.ListAllMetrics(ctx, tx, store.MetricFilter{OperandOf: frontier})
		if err != nil {
			return nil, eris.Wrap(err, "resolver: list dependent metrics")
		}
		var next []int64
		for _, m := range dependents {
			if _, ok := found[m.ID]; ok {
				continue
			}
			found[m.ID] = m
			next = append(next, m.ID)
		}
		if len(next) > 0 && depth == s.cfg.MaxDepth {
			return nil, apperr.Computation(apperr.CodeDependencyDepthExceeded,
				"calculated metrics nest deeper than %d levels", s.cfg.MaxDepth)
		}
		frontier = next
	}

	metrics := make([]model.Metric, 0, len(found))
	ids = make([]int64, 0, len(found))
	for id, m := range found {
		metrics = append(metrics, m)
		ids = append(ids, id)
	}
	order, err := metric.NewGraph(metrics).TopoOrder(ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Metric, 0, len(order))
	for _, id := range order {
		out = append(out, found[id])
	}
	return out, nil
}

func (s *Service) storeDerived(ctx context.Context, tx store.Store, b *batch, metrics []model.Metric) error {
	for i := range metrics {
		m := &metrics[i]
		v1, v2, err := metric.Operands(m)
		if err != nil {
			return err
		}
		a, err := s.operandValue(ctx, tx, b, m, v1)
		if err != nil {
			return err
		}
		c, err := s.operandValue(ctx, tx, b, m, v2)
		if err != nil {
			return err
		}
		value := metric.Apply(a, *m.Operator, c)

		existing, err := tx.LatestDailyRecord(ctx, b.userID, m.ID, b.day)
		if err != nil {
			return eris.Wrapf(err, "resolver: latest record for metric %d", m.ID)
		}
		if existing != nil {
			updated, err := tx.UpdateDailyRecordValue(ctx, existing.ID, value)
			if err != nil {
				return eris.Wrapf(err, "resolver: update calculated record %d", existing.ID)
			}
			b.keep(updated)
		} else {
			r := &model.DailyMetricRecord{
				UserID:   b.userID,
				MetricID: m.ID,
				Value:    value,
				Day:      b.day,
				BatchID:  b.id,
			}
			if err := tx.CreateDailyRecord(ctx, r); err != nil {
				return eris.Wrapf(err, "resolver: create calculated record for metric %d", m.ID)
			}
			b.keep(r)
		}
		b.values[m.ID] = value
	}
	return nil
}

// operandValue prefers the latest stored record for the day over the
// batch-local value.
func (s *Service) operandValue(ctx context.Context, tx store.Store, b *batch, m *model.Metric, operandID int64) (float64, error) {
	r, err := tx.LatestDailyRecord(ctx, b.userID, operandID, b.day)
	if err != nil {
		return 0, eris.Wrapf(err, "resolver: latest record for operand %d", operandID)
	}
	if r != nil {
		return r.Value, nil
	}
	if v, ok := b.values[operandID]; ok {
		return v, nil
	}
	return 0, apperr.Computation(apperr.CodeMissingOperandValue,
		"metric %d needs a value for metric %d on %s", m.ID, operandID, b.day.Format(model.DayLayout))
}

// List returns live daily records matching filter.
func (s *Service) List(ctx context.Context, filter store.DailyRecordFilter) ([]model.DailyMetricRecord, error) {
	records, err := s.store.ListDailyRecords(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: list records")
	}
	if records == nil {
		records = []model.DailyMetricRecord{}
	}
	return records, nil
}

// Get returns a live daily record.
func (s *Service) Get(ctx context.Context, id int64) (*model.DailyMetricRecord, error) {
	r, err := s.store.GetDailyRecord(ctx, id)
	if store.IsNotFound(err) {
		return nil, apperr.NotFound(apperr.CodeDailyMetricNotFound, "daily metric %d not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: get record %d", id)
	}
	return r, nil
}

// Delete soft-deletes a daily record.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteDailyRecord(ctx, id)
	if store.IsNotFound(err) {
		return apperr.NotFound(apperr.CodeDailyMetricNotFound, "daily metric %d not found", id)
	}
	return eris.Wrapf(err, "resolver: delete record %d", id)
}
