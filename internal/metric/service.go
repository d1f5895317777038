package metric

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/store"
)

// Service manages the metric catalog. Every write is checked against the
// definition rules and the operand graph before it is persisted.
type Service struct {
	store store.Store
}

// NewService creates a catalog service over st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Create validates and stores a new metric definition.
func (s *Service) Create(ctx context.Context, m *model.Metric) (*model.Metric, error) {
	m.ID = 0
	Normalize(m)
	if err := Validate(m); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := checkDefinition(ctx, tx, m); err != nil {
			return err
		}
		return eris.Wrap(tx.CreateMetric(ctx, m), "metric: create")
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("metric: created",
		zap.Int64("metric_id", m.ID),
		zap.String("name", m.Name),
		zap.Bool("calculated", m.IsCalculated),
	)
	return m, nil
}

// Update replaces the definition of an existing metric. IsCalculated follows
// the presence of an operator. A leaf with live submissions cannot become
// calculated.
func (s *Service) Update(ctx context.Context, m *model.Metric) (*model.Metric, error) {
	Normalize(m)
	if err := Validate(m); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		stored, err := getMetric(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if IsLeaf(stored) && !IsLeaf(m) {
			n, err := tx.CountDailyRecords(ctx, m.ID)
			if err != nil {
				return eris.Wrapf(err, "metric: count submissions for %d", m.ID)
			}
			if n > 0 {
				return apperr.Conflict(apperr.CodeMetricHasSubmissions,
					"metric %d has %d daily submissions and cannot become calculated", m.ID, n)
			}
		}
		if err := checkDefinition(ctx, tx, m); err != nil {
			return err
		}
		err = tx.UpdateMetric(ctx, m)
		if store.IsNotFound(err) {
			return apperr.NotFound(apperr.CodeMetricNotFound, "metric %d not found", m.ID)
		}
		return eris.Wrapf(err, "metric: update %d", m.ID)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("metric: updated", zap.Int64("metric_id", m.ID))
	return m, nil
}

// Get returns a live metric by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.Metric, error) {
	return getMetric(ctx, s.store, id)
}

// List returns live metrics matching filter.
func (s *Service) List(ctx context.Context, filter store.MetricFilter) ([]model.Metric, error) {
	metrics, err := s.store.ListMetrics(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "metric: list")
	}
	if metrics == nil {
		metrics = []model.Metric{}
	}
	return metrics, nil
}

// Delete soft-deletes a metric. Metrics with live submissions or live
// calculated dependents are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := getMetric(ctx, tx, id); err != nil {
			return err
		}

		n, err := tx.CountDailyRecords(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "metric: count submissions for %d", id)
		}
		if n > 0 {
			return apperr.Conflict(apperr.CodeMetricHasSubmissions,
				"metric %d has %d daily submissions and cannot be deleted", id, n)
		}

		dependents, err := tx.ListMetrics(ctx, store.MetricFilter{OperandOf: []int64{id}})
		if err != nil {
			return eris.Wrapf(err, "metric: list dependents of %d", id)
		}
		if len(dependents) > 0 {
			return apperr.Conflict(apperr.CodeMetricInUse,
				"metric %d is an operand of calculated metric %d", id, dependents[0].ID)
		}

		if err := tx.DeleteMetric(ctx, id); err != nil {
			return eris.Wrapf(err, "metric: delete %d", id)
		}
		zap.L().Info("metric: deleted", zap.Int64("metric_id", id))
		return nil
	})
}

// AttachToCompany makes a metric visible on a company's dashboard.
func (s *Service) AttachToCompany(ctx context.Context, companyID, metricID int64, label string) error {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFound(apperr.CodeCompanyNotFound, "company %d not found", companyID)
		}
		return eris.Wrapf(err, "metric: get company %d", companyID)
	}
	if _, err := getMetric(ctx, s.store, metricID); err != nil {
		return err
	}
	return eris.Wrap(s.store.AttachMetric(ctx, model.CompanyMetric{
		CompanyID: companyID,
		MetricID:  metricID,
		Label:     label,
	}), "metric: attach to company")
}

// checkDefinition enforces catalog-wide rules: unique case-folded names,
// live operands and an acyclic operand graph.
func checkDefinition(ctx context.Context, tx store.Store, m *model.Metric) error {
	existing, err := tx.GetMetricByNameKey(ctx, model.NameKey(m.Name))
	switch {
	case err == nil && existing.ID != m.ID:
		return apperr.Conflict(apperr.CodeMetricExists, "a metric named %q already exists", existing.Name)
	case err != nil && !store.IsNotFound(err):
		return eris.Wrap(err, "metric: lookup by name")
	}

	if IsLeaf(m) {
		return nil
	}

	v1, v2, err := Operands(m)
	if err != nil {
		return err
	}
	for _, id := range uniq([2]int64{v1, v2}) {
		if _, err := getMetric(ctx, tx, id); err != nil {
			return err
		}
	}

	if m.ID == 0 {
		return nil
	}
	calculated, err := store.ListAllMetrics(ctx, tx, store.MetricFilter{CalculatedOnly: true})
	if err != nil {
		return eris.Wrap(err, "metric: load operand graph")
	}
	g := NewGraph(calculated)
	g.Add(m)
	if g.CycleFrom(m.ID) {
		return apperr.Validation(apperr.CodeDependencyCycle,
			"metric %q would depend on itself through its operands", m.Name)
	}
	return nil
}

func getMetric(ctx context.Context, st store.MetricRepository, id int64) (*model.Metric, error) {
	m, err := st.GetMetric(ctx, id)
	if store.IsNotFound(err) {
		return nil, apperr.NotFound(apperr.CodeMetricNotFound, "metric %d not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "metric: get %d", id)
	}
	return m, nil
}
