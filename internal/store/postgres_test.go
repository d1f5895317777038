package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

var metricCols = []string{"id", "name", "type", "is_calculated", "operator", "value1_id", "value2_id",
	"is_default", "company_id", "created_by", "created_at", "updated_at"}

var dailyCols = []string{"id", "user_id", "metric_id", "product_id", "product_price", "value", "day",
	"batch_id", "created_at", "updated_at"}

func TestPostgresStore_GetMetric_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, type, .* FROM metrics WHERE id = \$1 AND NOT deleted`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetMetric(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMetric_Calculated(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM metrics WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(metricCols).
			AddRow(int64(3), "Total Sales", "numeric", true, "+", int64(1), int64(2), false, int64(0), int64(7), now, now))

	m, err := s.GetMetric(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, m.Operator)
	assert.Equal(t, model.OpAdd, *m.Operator)
	assert.Equal(t, model.MetricTypeNumeric, m.Type)
	assert.Equal(t, int64(1), *m.Value1ID)
	assert.Equal(t, int64(2), *m.Value2ID)
	assert.Nil(t, m.CompanyID)
	assert.Equal(t, int64(7), *m.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateMetric_Leaf(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	company := int64(5)

	mock.ExpectQuery(`INSERT INTO metrics .* RETURNING id, created_at, updated_at`).
		WithArgs("Calls Made", "calls made", "integer", false, nil, nil, nil, false, int64(5), nil).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))

	m := &model.Metric{Name: "Calls Made", Type: model.MetricTypeInteger, CompanyID: &company}
	require.NoError(t, s.CreateMetric(context.Background(), m))
	assert.Equal(t, int64(11), m.ID)
	assert.Equal(t, now, m.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMetrics_OperandOf(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND is_calculated AND \(value1_id = ANY\(\$1\) OR value2_id = ANY\(\$1\)\) ORDER BY id LIMIT \$2 OFFSET \$3`).
		WithArgs([]int64{1, 2}, 1000, 0).
		WillReturnRows(pgxmock.NewRows(metricCols).
			AddRow(int64(3), "Sum", "numeric", true, "+", int64(1), int64(2), false, int64(0), int64(0), now, now).
			AddRow(int64(4), "Ratio", "percent", true, "/", int64(2), int64(1), false, int64(0), int64(0), now, now))

	metrics, err := s.ListMetrics(context.Background(), MetricFilter{OperandOf: []int64{1, 2}})
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, int64(3), metrics[0].ID)
	assert.Equal(t, model.OpDiv, *metrics[1].Operator)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMetrics_CompanyWithDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND \(company_id = \$1 OR id IN \(SELECT metric_id FROM company_metrics WHERE company_id = \$1\) OR is_default\)`).
		WithArgs(int64(9), 1000, 0).
		WillReturnRows(pgxmock.NewRows(metricCols))

	company := int64(9)
	metrics, err := s.ListMetrics(context.Background(), MetricFilter{CompanyID: &company, IncludeDefault: true})
	require.NoError(t, err)
	assert.Empty(t, metrics)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestDailyRecord_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM daily_metrics\s+WHERE user_id = \$1 AND metric_id = \$2 AND day = \$3`).
		WithArgs(int64(1), int64(2), day).
		WillReturnError(pgx.ErrNoRows)

	r, err := s.LatestDailyRecord(context.Background(), 1, 2, day)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestDailyRecord_WithPrice(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM daily_metrics`).
		WithArgs(int64(1), int64(2), day).
		WillReturnRows(pgxmock.NewRows(dailyCols).
			AddRow(int64(8), int64(1), int64(2), int64(4), "19.99", 3.0, day, "batch-1", now, now))

	r, err := s.LatestDailyRecord(context.Background(), 1, 2, day)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NotNil(t, r.ProductPrice)
	assert.True(t, r.ProductPrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(4), *r.ProductID)
	assert.Equal(t, 3.0, r.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDailyRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE daily_metrics SET deleted = true`).
		WithArgs(int64(77)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.DeleteDailyRecord(context.Background(), 77)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SumDailyValues(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(value\), 0\)::float8 FROM daily_metrics`).
		WithArgs(int64(1), int64(2), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(25.5))

	sum, err := s.SumDailyValues(context.Background(), 1, 2, from, to)
	require.NoError(t, err)
	assert.Equal(t, 25.5, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_Commit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectExec(`UPDATE metrics SET deleted = true`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx Store) error {
		return tx.DeleteMetric(context.Background(), 3)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_RollbackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(Store) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_SerializationFailureIsTransient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(Store) error { return nil })
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_Nested(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectCommit()

	calls := 0
	err := s.WithTx(context.Background(), func(tx Store) error {
		return tx.WithTx(context.Background(), func(inner Store) error {
			calls++
			assert.Same(t, tx, inner)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProjections_Window(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM projections WHERE NOT deleted AND status = \$1 AND start_date <= \$2 AND end_date >= \$3`).
		WithArgs("ACTIVE", to, from, 1000, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "metric_id", "company_id", "period", "target_value",
			"start_date", "end_date", "status", "created_at", "updated_at"}).
			AddRow(int64(1), int64(2), int64(3), int64(4), "monthly", 20.0, from, from.AddDate(0, 1, -1), "ACTIVE", now, now))

	got, err := s.ListProjections(context.Background(), ProjectionFilter{Status: model.ProjectionActive, From: from, To: to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.PeriodMonthly, got[0].Period)
	assert.Equal(t, int64(4), *got[0].CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
