package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
)

// UserHeader carries the acting user id set by the upstream auth gateway.
const UserHeader = "X-User-ID"

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeErrorBody(w http.ResponseWriter, status int, kind, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Code: code, Message: message}})
}

// writeError maps classified errors to their status; anything else is logged
// and reported as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		writeErrorBody(w, apperr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Code, ae.Message)
		return
	}
	zap.L().Error("api: internal error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeErrorBody(w, http.StatusInternalServerError, string(apperr.KindInternal), "", "internal server error")
}

func invalid(format string, args ...any) error {
	return apperr.Validation(apperr.CodeInvalidInput, format, args...)
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid("invalid request body: %v", err)
	}
	return s.check(dst)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return invalid("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return invalid("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return invalid("%v", err)
}

func actingUser(r *http.Request) (int64, error) {
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		return 0, invalid("%s header is required", UserHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("%s header must be a positive integer", UserHeader)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid id %q", raw)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, invalid("%s must be a positive integer", name)
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid("%s must be a non-negative integer", name)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, invalid("%s is required", name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalid("%s must be a number", name)
	}
	return f, nil
}

func queryDay(r *http.Request, name string) (time.Time, error) {
	return parseDay(name, r.URL.Query().Get(name))
}

func parseDay(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DayLayout, raw)
	if err != nil {
		return time.Time{}, invalid("%s must be a date in %s format", name, model.DayLayout)
	}
	return t, nil
}

func parseOptionalDay(name string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDay(name, *raw)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, invalid("%s must not be empty", name)
	}
	return &t, nil
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func idList(r *http.Request, name string) ([]int64, error) {
	id, err := queryID(r, name)
	if err != nil || id == nil {
		return nil, err
	}
	return []int64{*id}, nil
}
