package api

import (
	"net/http"

	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/pacing"
)

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	var (
		f   dashboard.Filter
		err error
	)
	if f.CompanyID, err = queryID(r, "company_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.UserID, err = queryID(r, "user_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.MainMetricID, err = queryID(r, "main_metric_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.SecondaryMetricID, err = queryID(r, "secondary_metric_id"); err != nil {
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

	summaries, err := s.svc.Dashboard.Get(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) getPacing(w http.ResponseWriter, r *http.Request) {
	target, err := queryFloat(r, "target")
	if err != nil {
		writeError(w, r, err)
		return
	}
	progress, err := queryFloat(r, "progress")
	if err != nil {
		writeError(w, r, err)
		return
	}
	totalDays, err := queryInt(r, "total_days")
	if err != nil {
		writeError(w, r, err)
		return
	}
	elapsedDays, err := queryInt(r, "elapsed_days")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pacing.Compute(target, progress, totalDays, elapsedDays))
}
