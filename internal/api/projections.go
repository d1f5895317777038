package api

import (
	"net/http"

	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/projection"
	"github.com/sells-group/salestrack/internal/store"
)

type projectionRequest struct {
	MetricID    int64        `json:"metric_id" validate:"required,gt=0"`
	CompanyID   *int64       `json:"company_id" validate:"omitempty,gt=0"`
	Period      model.Period `json:"period" validate:"required"`
	TargetValue float64      `json:"target_value" validate:"gt=0"`
	StartDate   string       `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string       `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type projectionPatch struct {
	Period      *model.Period           `json:"period"`
	TargetValue *float64                `json:"target_value" validate:"omitempty,gt=0"`
	StartDate   *string                 `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string                 `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Status      *model.ProjectionStatus `json:"status"`
}

func (s *Server) createProjection(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req projectionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDay("start_date", req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDay("end_date", req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.svc.Projections.Create(r.Context(), projection.CreateRequest{
		UserID:      userID,
		MetricID:    req.MetricID,
		CompanyID:   req.CompanyID,
		Period:      req.Period,
		TargetValue: req.TargetValue,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjections(w http.ResponseWriter, r *http.Request) {
	var (
		f   store.ProjectionFilter
		err error
	)
	if f.UserID, err = queryID(r, "user_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.CompanyID, err = queryID(r, "company_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.MetricIDs, err = idList(r, "metric_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.From, err = queryDay(r, "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.To, err = queryDay(r, "to"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, f.Offset, err = pageParams(r); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f.Period = model.Period(q.Get("period"))
	f.Status = model.ProjectionStatus(q.Get("status"))

	list, err := s.svc.Projections.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getProjection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.svc.Projections.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProjection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch projectionPatch
	if err := s.decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseOptionalDay("start_date", patch.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseOptionalDay("end_date", patch.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.svc.Projections.Update(r.Context(), id, projection.UpdateRequest{
		Period:      patch.Period,
		TargetValue: patch.TargetValue,
		StartDate:   start,
		EndDate:     end,
		Status:      patch.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProjection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Projections.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
