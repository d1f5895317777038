package api

import (
	"net/http"

	"github.com/sells-group/salestrack/internal/resolver"
	"github.com/sells-group/salestrack/internal/store"
)

type submitRequest struct {
	Date    string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Entries []resolver.Entry `json:"entries" validate:"dive"`
}

func (s *Server) submitDailyMetrics(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := s.svc.Resolver.Submit(r.Context(), resolver.SubmitRequest{
		UserID:  userID,
		Day:     day,
		Entries: req.Entries,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

func (s *Server) listDailyMetrics(w http.ResponseWriter, r *http.Request) {
	filter, err := dailyFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.svc.Resolver.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func dailyFilter(r *http.Request) (store.DailyRecordFilter, error) {
	var (
		f   store.DailyRecordFilter
		err error
	)
	if f.UserID, err = queryID(r, "user_id"); err != nil {
		return f, err
	}
	if f.MetricIDs, err = idList(r, "metric_id"); err != nil {
		return f, err
	}
	if f.From, err = queryDay(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDay(r, "to"); err != nil {
		return f, err
	}
	f.Limit, f.Offset, err = pageParams(r)
	return f, err
}

func (s *Server) getDailyMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.svc.Resolver.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteDailyMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Resolver.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
