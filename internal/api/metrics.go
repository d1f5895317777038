package api

import (
	"net/http"

	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/store"
)

type metricRequest struct {
	Name      string           `json:"name" validate:"required,max=255"`
	Type      model.MetricType `json:"type" validate:"required"`
	Operator  *model.Operator  `json:"operator"`
	Value1ID  *int64           `json:"value1_id" validate:"omitempty,gt=0"`
	Value2ID  *int64           `json:"value2_id" validate:"omitempty,gt=0"`
	IsDefault bool             `json:"is_default"`
	CompanyID *int64           `json:"company_id" validate:"omitempty,gt=0"`
}

// metricPatch changes the present fields of a metric. An empty operator
// string turns a calculated metric back into a leaf.
type metricPatch struct {
	Name      *string           `json:"name" validate:"omitempty,min=1,max=255"`
	Type      *model.MetricType `json:"type"`
	Operator  *model.Operator   `json:"operator"`
	Value1ID  *int64            `json:"value1_id" validate:"omitempty,gt=0"`
	Value2ID  *int64            `json:"value2_id" validate:"omitempty,gt=0"`
	IsDefault *bool             `json:"is_default"`
}

func (s *Server) createMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m := &model.Metric{
		Name:      req.Name,
		Type:      req.Type,
		Operator:  req.Operator,
		Value1ID:  req.Value1ID,
		Value2ID:  req.Value2ID,
		IsDefault: req.IsDefault,
		CompanyID: req.CompanyID,
	}
	if userID, err := actingUser(r); err == nil {
		m.CreatedBy = &userID
	}

	created, err := s.svc.Metrics.Create(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	metrics, err := s.svc.Metrics.List(r.Context(), store.MetricFilter{
		CompanyID:      companyID,
		IncludeDefault: q.Get("include_default") == "true",
		CalculatedOnly: q.Get("calculated") == "true",
		Name:           q.Get("name"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) getMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.svc.Metrics.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) updateMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch metricPatch
	if err := s.decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := s.svc.Metrics.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.Operator != nil {
		m.Operator = patch.Operator
		if *patch.Operator == "" {
			m.Operator = nil
		}
	}
	if patch.Value1ID != nil {
		m.Value1ID = patch.Value1ID
	}
	if patch.Value2ID != nil {
		m.Value2ID = patch.Value2ID
	}
	if patch.IsDefault != nil {
		m.IsDefault = *patch.IsDefault
	}

	updated, err := s.svc.Metrics.Update(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Metrics.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
