// Package projection manages time-bound targets for (user, metric) pairs and
// reports progress and pacing against them.
package projection

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/pacing"
	"github.com/sells-group/salestrack/internal/store"
)

// CreateRequest describes a new projection. CompanyID defaults to the user's company.
type CreateRequest struct {
	UserID      int64
	MetricID    int64
	CompanyID   *int64
	Period      model.Period
	TargetValue float64
	StartDate   time.Time
	EndDate     time.Time
}

// UpdateRequest changes the non-nil fields of a projection.
type UpdateRequest struct {
	Period      *model.Period
	TargetValue *float64
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *model.ProjectionStatus
}

// Progress is a projection with the user's actuals inside its window.
type Progress struct {
	model.Projection
	TotalMetricsValue float64 `json:"total_metrics_value"`
	Remaining         float64 `json:"remaining"`
	pacing.Result
}

// Service manages projections.
type Service struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to decide which projections are current.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides the current calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a projection service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return model.Day(s.now(), s.loc)
}

// Create stores a projection. Only one projection that has not yet ended may
// exist per (user, metric).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Projection, error) {
	p := &model.Projection{
		UserID:      req.UserID,
		MetricID:    req.MetricID,
		CompanyID:   req.CompanyID,
		Period:      req.Period,
		TargetValue: req.TargetValue,
		StartDate:   model.Day(req.StartDate, time.UTC),
		EndDate:     model.Day(req.EndDate, time.UTC),
		Status:      model.ProjectionActive,
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.GetUser(ctx, p.UserID)
		if err != nil {
			if store.IsNotFound(err) {
				return apperr.NotFound(apperr.CodeUserNotFound, "user %d not found", p.UserID)
			}
			return eris.Wrapf(err, "projection: get user %d", p.UserID)
		}
		if p.CompanyID == nil {
			p.CompanyID = u.CompanyID
		}

		if _, err := tx.GetMetric(ctx, p.MetricID); err != nil {
			if store.IsNotFound(err) {
				return apperr.NotFound(apperr.CodeMetricNotFound, "metric %d not found", p.MetricID)
			}
			return eris.Wrapf(err, "projection: get metric %d", p.MetricID)
		}

		active, err := tx.ActiveProjection(ctx, p.UserID, p.MetricID, s.today())
		if err != nil {
			return eris.Wrap(err, "projection: find active")
		}
		if active != nil {
			return apperr.Conflict(apperr.CodeProjectionExists,
				"user %d already has projection %d for metric %d until %s",
				p.UserID, active.ID, p.MetricID, active.EndDate.Format(model.DayLayout))
		}

		return eris.Wrap(tx.CreateProjection(ctx, p), "projection: create")
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("projection: created",
		zap.Int64("projection_id", p.ID),
		zap.Int64("user_id", p.UserID),
		zap.Int64("metric_id", p.MetricID),
		zap.String("period", string(p.Period)),
	)
	return p, nil
}

// List returns projections matching filter with progress and pacing.
func (s *Service) List(ctx context.Context, filter store.ProjectionFilter) ([]Progress, error) {
	projections, err := s.store.ListProjections(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "projection: list")
	}

	out := make([]Progress, 0, len(projections))
	for _, p := range projections {
		pr, err := s.progress(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}

// Get returns one projection with progress and pacing.
func (s *Service) Get(ctx context.Context, id int64) (*Progress, error) {
	p, err := s.get(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	pr, err := s.progress(ctx, *p)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *Service) progress(ctx context.Context, p model.Projection) (Progress, error) {
	total, err := s.store.SumDailyValues(ctx, p.UserID, p.MetricID, p.StartDate, p.EndDate)
	if err != nil {
		return Progress{}, eris.Wrapf(err, "projection: sum actuals for %d", p.ID)
	}
	totalDays, elapsedDays := pacing.Window(p.StartDate, p.EndDate, s.today())
	return Progress{
		Projection:        p,
		TotalMetricsValue: total,
		Remaining:         max(0, p.TargetValue-total),
		Result:            pacing.Compute(p.TargetValue, total, totalDays, elapsedDays),
	}, nil
}

// Update applies req to projection id.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*model.Projection, error) {
	var p *model.Projection
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		if p, err = s.get(ctx, tx, id); err != nil {
			return err
		}
		if req.Period != nil {
			p.Period = *req.Period
		}
		if req.TargetValue != nil {
			p.TargetValue = *req.TargetValue
		}
		if req.StartDate != nil {
			p.StartDate = model.Day(*req.StartDate, time.UTC)
		}
		if req.EndDate != nil {
			p.EndDate = model.Day(*req.EndDate, time.UTC)
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		if err := validate(p); err != nil {
			return err
		}
		return eris.Wrapf(tx.UpdateProjection(ctx, p), "projection: update %d", id)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("projection: updated", zap.Int64("projection_id", id))
	return p, nil
}

// Delete soft-deletes a projection.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteProjection(ctx, id)
	if store.IsNotFound(err) {
		return apperr.NotFound(apperr.CodeProjectionNotFound, "projection %d not found", id)
	}
	if err != nil {
		return eris.Wrapf(err, "projection: delete %d", id)
	}
	zap.L().Info("projection: deleted", zap.Int64("projection_id", id))
	return nil
}

func (s *Service) get(ctx context.Context, st store.ProjectionRepository, id int64) (*model.Projection, error) {
	p, err := st.GetProjection(ctx, id)
	if store.IsNotFound(err) {
		return nil, apperr.NotFound(apperr.CodeProjectionNotFound, "projection %d not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "projection: get %d", id)
	}
	return p, nil
}

func validate(p *model.Projection) error {
	switch {
	case p.UserID <= 0 || p.MetricID <= 0:
		return apperr.Validation(apperr.CodeInvalidInput, "user and metric ids must be positive")
	case !p.Period.Valid():
		return apperr.Validation(apperr.CodeInvalidInput, "unknown period %q", p.Period)
	case p.TargetValue <= 0:
		return apperr.Validation(apperr.CodeInvalidInput, "target value must be positive")
	case p.StartDate.IsZero() || p.EndDate.IsZero():
		return apperr.Validation(apperr.CodeInvalidInput, "start and end dates are required")
	case !p.StartDate.Before(p.EndDate):
		return apperr.Validation(apperr.CodeInvalidInput, "start date must be before end date")
	case p.Status != model.ProjectionActive && p.Status != model.ProjectionInactive:
		return apperr.Validation(apperr.CodeInvalidInput, "unknown status %q", p.Status)
	}
	return nil
}
