package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/metric"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/pacing"
	"github.com/sells-group/salestrack/internal/projection"
	"github.com/sells-group/salestrack/internal/resolver"
	"github.com/sells-group/salestrack/internal/store"
)

type testServer struct {
	st      *store.SQLiteStore
	handler http.Handler
	user    *model.User
}

// The clock sits on 2026-01-15.
func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	return newTestServerIn(t, cfg, time.UTC)
}

// newTestServerIn places submissions and dashboards in loc.
func newTestServerIn(t *testing.T, cfg Config, loc *time.Location) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	company := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, company))
	user := &model.User{CompanyID: &company.ID, Email: "rep@acme.test"}
	require.NoError(t, st.CreateUser(ctx, user))

	now := func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	srv := NewServer(Services{
		Store:       st,
		Metrics:     metric.NewService(st),
		Resolver:    resolver.NewService(st, resolver.Config{Location: loc}, resolver.WithClock(now)),
		Projections: projection.NewService(st, projection.WithClock(now), projection.WithLocation(loc)),
		Dashboard:   dashboard.NewService(st, dashboard.Config{Location: loc}, dashboard.WithClock(now)),
	}, cfg)

	return &testServer{st: st, handler: srv.Handler(), user: user}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, withUser bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withUser {
		req.Header.Set(UserHeader, strconv.FormatInt(ts.user.ID, 10))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createMetric(t *testing.T, body map[string]any) model.Metric {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/metrics", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m model.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestMetrics_CRUD(t *testing.T) {
	ts := newTestServer(t, Config{})

	m := ts.createMetric(t, map[string]any{"name": "Revenue", "type": "numeric"})
	assert.NotZero(t, m.ID)
	assert.False(t, m.IsCalculated)
	require.NotNil(t, m.CreatedBy)
	assert.Equal(t, ts.user.ID, *m.CreatedBy)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/metrics/%d", m.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/v1/metrics/%d", m.ID), map[string]any{"name": "Gross Revenue"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Gross Revenue", updated.Name)

	rec = ts.do(t, http.MethodGet, "/v1/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/metrics/%d", m.ID), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/metrics/%d", m.ID), nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "not_found", e.Kind)
	assert.Equal(t, "METRIC_NOT_FOUND", e.Code)
}

func TestMetrics_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.createMetric(t, map[string]any{"name": "Revenue", "type": "numeric"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing name", http.MethodPost, "/v1/metrics", map[string]any{"type": "numeric"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown field", http.MethodPost, "/v1/metrics", map[string]any{"name": "X", "type": "numeric", "color": "red"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed json", http.MethodPost, "/v1/metrics", "{", http.StatusBadRequest, "INVALID_INPUT"},
		{"bad type", http.MethodPost, "/v1/metrics", map[string]any{"name": "X", "type": "money"}, http.StatusBadRequest, "INVALID_METRIC_DEFINITION"},
		{"duplicate name", http.MethodPost, "/v1/metrics", map[string]any{"name": "revenue", "type": "numeric"}, http.StatusConflict, "METRIC_EXISTS"},
		{"missing operand", http.MethodPost, "/v1/metrics", map[string]any{"name": "Y", "type": "numeric", "operator": "+", "value1_id": 1, "value2_id": 99}, http.StatusNotFound, "METRIC_NOT_FOUND"},
		{"bad id", http.MethodGet, "/v1/metrics/abc", nil, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body, true)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestDailyMetrics_SubmitResolvesCalculated(t *testing.T) {
	ts := newTestServer(t, Config{})
	a := ts.createMetric(t, map[string]any{"name": "Calls", "type": "integer"})
	b := ts.createMetric(t, map[string]any{"name": "Meetings", "type": "integer"})
	c := ts.createMetric(t, map[string]any{
		"name": "Touches", "type": "integer", "operator": "+", "value1_id": a.ID, "value2_id": b.ID,
	})

	rec := ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"date": "2026-01-05",
		"entries": []map[string]any{
			{"metric_id": a.ID, "value": 4},
			{"metric_id": b.ID, "value": 6},
		},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var records []model.DailyMetricRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 3)
	assert.Equal(t, c.ID, records[2].MetricID)
	assert.InDelta(t, 10, records[2].Value, 1e-9)
	assert.Equal(t, "2026-01-05", records[2].Day.Format(model.DayLayout))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/daily-metrics?metric_id=%d&from=2026-01-01&to=2026-01-31", c.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.DailyMetricRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/daily-metrics/%d", listed[0].ID), nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/daily-metrics/%d", listed[0].ID), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/daily-metrics/%d", listed[0].ID), nil, false)
	assert.Equal(t, "DAILY_METRIC_NOT_FOUND", decodeError(t, rec).Code)
}

func TestDailyMetrics_SubmitDateIsCalendarDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := newTestServerIn(t, Config{}, ny)
	a := ts.createMetric(t, map[string]any{"name": "Calls", "type": "integer"})

	for _, v := range []float64{2, 3} {
		rec := ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
			"date":    "2026-10-01",
			"entries": []map[string]any{{"metric_id": a.ID, "value": v}},
		}, true)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/daily-metrics?metric_id=%d", a.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.DailyMetricRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "2026-10-01", listed[0].Day.Format(model.DayLayout))
	assert.InDelta(t, 5, listed[0].Value, 1e-9)
}

func TestDailyMetrics_SubmitErrors(t *testing.T) {
	ts := newTestServer(t, Config{})
	a := ts.createMetric(t, map[string]any{"name": "Calls", "type": "integer"})

	rec := ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"entries": []map[string]any{{"metric_id": a.ID, "value": 1}},
	}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"entries": []map[string]any{{"metric_id": 0, "value": 1}},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"date":    "05/01/2026",
		"entries": []map[string]any{{"metric_id": a.ID, "value": 1}},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"entries": []map[string]any{{"metric_id": 404, "value": 1}},
	}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "METRIC_NOT_FOUND", decodeError(t, rec).Code)
}

func TestProjections_CreateListPacing(t *testing.T) {
	ts := newTestServer(t, Config{})
	m := ts.createMetric(t, map[string]any{"name": "Revenue", "type": "numeric"})

	rec := ts.do(t, http.MethodPost, "/v1/projections", map[string]any{
		"metric_id":    m.ID,
		"period":       "monthly",
		"target_value": 100,
		"start_date":   "2026-01-01",
		"end_date":     "2026-01-30",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Projection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, ts.user.ID, created.UserID)

	rec = ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
		"date":    "2026-01-10",
		"entries": []map[string]any{{"metric_id": m.ID, "value": 80}},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/projections?user_id=%d", ts.user.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []projection.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.InDelta(t, 80, list[0].TotalMetricsValue, 1e-9)
	assert.InDelta(t, 20, list[0].Remaining, 1e-9)
	assert.InDelta(t, 160, list[0].ProjectedTotal, 1e-9)
	assert.InDelta(t, -60, list[0].PacingPercentage, 1e-9)

	rec = ts.do(t, http.MethodPost, "/v1/projections", map[string]any{
		"metric_id":    m.ID,
		"period":       "monthly",
		"target_value": 50,
		"start_date":   "2026-01-01",
		"end_date":     "2026-01-30",
	}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PROJECTION_EXISTS", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/v1/projections/%d", created.ID), map[string]any{"target_value": 200}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/projections/%d", created.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var got projection.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 200, got.TargetValue, 1e-9)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/projections/%d", created.ID), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/projections/%d", created.ID), nil, true)
	assert.Equal(t, "PROJECTION_NOT_FOUND", decodeError(t, rec).Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, Config{})
	m := ts.createMetric(t, map[string]any{"name": "Revenue", "type": "numeric"})

	for _, entry := range []struct {
		date  string
		value float64
	}{{"2026-01-03", 10}, {"2026-01-09", 15}} {
		rec := ts.do(t, http.MethodPost, "/v1/daily-metrics", map[string]any{
			"date":    entry.date,
			"entries": []map[string]any{{"metric_id": m.ID, "value": entry.value}},
		}, true)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := ts.do(t, http.MethodPost, "/v1/projections", map[string]any{
		"metric_id":    m.ID,
		"period":       "monthly",
		"target_value": 20,
		"start_date":   "2026-01-01",
		"end_date":     "2026-01-31",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/dashboard?main_metric_id=%d", m.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summaries []dashboard.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.InDelta(t, 25, summaries[0].RevenueGenerated, 1e-9)
	assert.InDelta(t, 20, summaries[0].Expenses, 1e-9)
	assert.InDelta(t, 25, summaries[0].ProfitRatio, 1e-9)
	assert.True(t, summaries[0].IsMainMetric)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard?main_metric_id=999", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/dashboard?from=yesterday", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPacing(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/v1/pacing?target=100&progress=50&total_days=30&elapsed_days=15", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var got pacing.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 50.0/15, got.PacingRate, 1e-9)
	assert.InDelta(t, 100, got.ProjectedTotal, 1e-9)
	assert.InDelta(t, 0, got.PacingPercentage, 1e-9)

	rec = ts.do(t, http.MethodGet, "/v1/pacing?progress=50", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	ts := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rec := ts.do(t, http.MethodPost, "/v1/metrics", map[string]any{"name": "A", "type": "numeric"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/metrics", map[string]any{"name": "B", "type": "numeric"}, true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/v1/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Config{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/metrics", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
