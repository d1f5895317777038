package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/salestrack/internal/model"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	q    sqlQuerier
	inTx bool
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is capped at one connection so a transaction never waits on itself.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id    INTEGER REFERENCES companies(id),
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	deleted       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER REFERENCES companies(id),
	name       TEXT NOT NULL,
	price      TEXT NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metrics (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	type          TEXT NOT NULL,
	is_calculated INTEGER NOT NULL DEFAULT 0,
	operator      TEXT,
	value1_id     INTEGER REFERENCES metrics(id),
	value2_id     INTEGER REFERENCES metrics(id),
	is_default    INTEGER NOT NULL DEFAULT 0,
	company_id    INTEGER REFERENCES companies(id),
	created_by    INTEGER,
	deleted       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS company_metrics (
	company_id INTEGER NOT NULL REFERENCES companies(id),
	metric_id  INTEGER NOT NULL REFERENCES metrics(id),
	label      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (company_id, metric_id)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER NOT NULL REFERENCES users(id),
	metric_id     INTEGER NOT NULL REFERENCES metrics(id),
	product_id    INTEGER REFERENCES products(id),
	product_price TEXT,
	value         REAL NOT NULL,
	day           TEXT NOT NULL,
	batch_id      TEXT NOT NULL DEFAULT '',
	deleted       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projections (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL REFERENCES users(id),
	metric_id    INTEGER NOT NULL REFERENCES metrics(id),
	company_id   INTEGER REFERENCES companies(id),
	period       TEXT NOT NULL,
	target_value REAL NOT NULL,
	start_date   TEXT NOT NULL,
	end_date     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'ACTIVE',
	deleted      INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_metrics_name_key ON metrics(name_key) WHERE deleted = 0;
CREATE INDEX IF NOT EXISTS idx_metrics_value1 ON metrics(value1_id);
CREATE INDEX IF NOT EXISTS idx_metrics_value2 ON metrics(value2_id);
CREATE INDEX IF NOT EXISTS idx_daily_metrics_key ON daily_metrics(user_id, metric_id, day);
CREATE INDEX IF NOT EXISTS idx_daily_metrics_day ON daily_metrics(day);
CREATE INDEX IF NOT EXISTS idx_projections_user_metric ON projections(user_id, metric_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Companies ---

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO companies (name, created_at) VALUES (?, ?)`, c.Name, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert company")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: company id")
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE id = ? AND deleted = 0`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: company %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return &c, nil
}

func (s *SQLiteStore) AttachMetric(ctx context.Context, cm model.CompanyMetric) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO company_metrics (company_id, metric_id, label) VALUES (?, ?, ?)
		 ON CONFLICT (company_id, metric_id) DO UPDATE SET label = excluded.label`,
		cm.CompanyID, cm.MetricID, cm.Label)
	return eris.Wrapf(err, "sqlite: attach metric %d to company %d", cm.MetricID, cm.CompanyID)
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO users (company_id, first_name, last_name, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idOrNil(u.CompanyID), u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: user id")
	}
	u.ID = id
	u.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	var companyID int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, COALESCE(company_id, 0), first_name, last_name, email, password_hash, role, created_at
		 FROM users WHERE id = ? AND deleted = 0`, id,
	).Scan(&u.ID, &companyID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: user %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user %d", id)
	}
	u.CompanyID = nullableID(companyID)
	return &u, nil
}

// --- Products ---

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *model.Product) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO products (company_id, name, price, created_at) VALUES (?, ?, ?, ?)`,
		idOrNil(p.CompanyID), p.Name, p.Price.String(), now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert product")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: product id")
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	var companyID int64
	var price string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, COALESCE(company_id, 0), name, price, created_at FROM products WHERE id = ? AND deleted = 0`, id,
	).Scan(&p.ID, &companyID, &p.Name, &price, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: product %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %d", id)
	}
	p.CompanyID = nullableID(companyID)
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse price of product %d", id)
	}
	return &p, nil
}

func (s *SQLiteStore) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE products SET price = ? WHERE id = ? AND deleted = 0`, price.String(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product price %d", id)
	}
	return checkRowsAffected(res, "product", id)
}

// --- Metrics ---

const sqliteMetricColumns = `id, name, type, is_calculated, COALESCE(operator, ''), COALESCE(value1_id, 0),
	COALESCE(value2_id, 0), is_default, COALESCE(company_id, 0), COALESCE(created_by, 0), created_at, updated_at`

func (s *SQLiteStore) CreateMetric(ctx context.Context, m *model.Metric) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO metrics (name, name_key, type, is_calculated, operator, value1_id, value2_id,
			is_default, company_id, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, model.NameKey(m.Name), string(m.Type), m.IsCalculated, operatorString(m.Operator),
		idOrNil(m.Value1ID), idOrNil(m.Value2ID), m.IsDefault, idOrNil(m.CompanyID), idOrNil(m.CreatedBy),
		now, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert metric")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: metric id")
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetMetric(ctx context.Context, id int64) (*model.Metric, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteMetricColumns+` FROM metrics WHERE id = ? AND deleted = 0`, id)
	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: metric %d", id)
	}
	return m, eris.Wrapf(err, "sqlite: get metric %d", id)
}

func (s *SQLiteStore) GetMetricByNameKey(ctx context.Context, key string) (*model.Metric, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteMetricColumns+` FROM metrics WHERE name_key = ? AND deleted = 0`, key)
	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: metric named %q", key)
	}
	return m, eris.Wrap(err, "sqlite: get metric by name")
}

func (s *SQLiteStore) UpdateMetric(ctx context.Context, m *model.Metric) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE metrics SET name = ?, name_key = ?, type = ?, is_calculated = ?, operator = ?,
			value1_id = ?, value2_id = ?, is_default = ?, company_id = ?, updated_at = ?
		 WHERE id = ? AND deleted = 0`,
		m.Name, model.NameKey(m.Name), string(m.Type), m.IsCalculated, operatorString(m.Operator),
		idOrNil(m.Value1ID), idOrNil(m.Value2ID), m.IsDefault, idOrNil(m.CompanyID), now, m.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update metric %d", m.ID)
	}
	if err := checkRowsAffected(res, "metric", m.ID); err != nil {
		return err
	}
	m.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error) {
	query := `SELECT ` + sqliteMetricColumns + ` FROM metrics WHERE deleted = 0`
	var args []any

	if len(filter.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(filter.IDs)) + `)`
		args = appendIDs(args, filter.IDs)
	}
	if filter.CompanyID != nil {
		cond := `company_id = ? OR id IN (SELECT metric_id FROM company_metrics WHERE company_id = ?)`
		if filter.IncludeDefault {
			cond += ` OR is_default = 1`
		}
		query += ` AND (` + cond + `)`
		args = append(args, *filter.CompanyID, *filter.CompanyID)
	}
	if len(filter.OperandOf) > 0 {
		in := placeholders(len(filter.OperandOf))
		query += ` AND is_calculated = 1 AND (value1_id IN (` + in + `) OR value2_id IN (` + in + `))`
		args = appendIDs(args, filter.OperandOf)
		args = appendIDs(args, filter.OperandOf)
	}
	if filter.CalculatedOnly {
		query += ` AND is_calculated = 1`
	}
	if filter.Name != "" {
		query += ` AND name LIKE '%' || ? || '%'`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var metrics []model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		metrics = append(metrics, *m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

func (s *SQLiteStore) DeleteMetric(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE metrics SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete metric %d", id)
	}
	return checkRowsAffected(res, "metric", id)
}

// --- Daily metric records ---

const sqliteDailyColumns = `id, user_id, metric_id, COALESCE(product_id, 0), COALESCE(product_price, ''),
	value, day, batch_id, created_at, updated_at`

func (s *SQLiteStore) LatestDailyRecord(ctx context.Context, userID, metricID int64, day time.Time) (*model.DailyMetricRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteDailyColumns+` FROM daily_metrics
		 WHERE user_id = ? AND metric_id = ? AND day = ? AND deleted = 0
		 ORDER BY id DESC LIMIT 1`,
		userID, metricID, day.Format(model.DayLayout))
	r, err := scanSQLiteDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, eris.Wrapf(err, "sqlite: latest daily record user %d metric %d", userID, metricID)
}

func (s *SQLiteStore) CreateDailyRecord(ctx context.Context, r *model.DailyMetricRecord) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO daily_metrics (user_id, metric_id, product_id, product_price, value, day, batch_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.MetricID, idOrNil(r.ProductID), priceString(r.ProductPrice), r.Value,
		r.Day.Format(model.DayLayout), r.BatchID, now, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert daily record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: daily record id")
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) UpdateDailyRecordValue(ctx context.Context, id int64, value float64) (*model.DailyMetricRecord, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE daily_metrics SET value = ?, updated_at = ? WHERE id = ? AND deleted = 0`,
		value, time.Now().UTC(), id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update daily record %d", id)
	}
	if err := checkRowsAffected(res, "daily record", id); err != nil {
		return nil, err
	}
	return s.GetDailyRecord(ctx, id)
}

func (s *SQLiteStore) GetDailyRecord(ctx context.Context, id int64) (*model.DailyMetricRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteDailyColumns+` FROM daily_metrics WHERE id = ? AND deleted = 0`, id)
	r, err := scanSQLiteDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: daily record %d", id)
	}
	return r, eris.Wrapf(err, "sqlite: get daily record %d", id)
}

func (s *SQLiteStore) ListDailyRecords(ctx context.Context, filter DailyRecordFilter) ([]model.DailyMetricRecord, error) {
	query := `SELECT ` + sqliteDailyColumns + ` FROM daily_metrics WHERE deleted = 0`
	var args []any

	if filter.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filter.UserID)
	}
	if len(filter.MetricIDs) > 0 {
		query += ` AND metric_id IN (` + placeholders(len(filter.MetricIDs)) + `)`
		args = appendIDs(args, filter.MetricIDs)
	}
	if !filter.From.IsZero() {
		query += ` AND day >= ?`
		args = append(args, filter.From.Format(model.DayLayout))
	}
	if !filter.To.IsZero() {
		query += ` AND day <= ?`
		args = append(args, filter.To.Format(model.DayLayout))
	}
	query += ` ORDER BY day, id LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily records")
	}
	defer rows.Close()

	var records []model.DailyMetricRecord
	for rows.Next() {
		r, err := scanSQLiteDaily(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list daily records iterate")
}

func (s *SQLiteStore) CountDailyRecords(ctx context.Context, metricID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_metrics WHERE metric_id = ? AND deleted = 0`, metricID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count daily records for metric %d", metricID)
}

func (s *SQLiteStore) SumDailyValues(ctx context.Context, userID, metricID int64, from, to time.Time) (float64, error) {
	var sum float64
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0.0) FROM daily_metrics
		 WHERE user_id = ? AND metric_id = ? AND deleted = 0 AND day >= ? AND day <= ?`,
		userID, metricID, from.Format(model.DayLayout), to.Format(model.DayLayout),
	).Scan(&sum)
	return sum, eris.Wrapf(err, "sqlite: sum daily values user %d metric %d", userID, metricID)
}

func (s *SQLiteStore) DeleteDailyRecord(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE daily_metrics SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete daily record %d", id)
	}
	return checkRowsAffected(res, "daily record", id)
}

// --- Projections ---

const sqliteProjectionColumns = `id, user_id, metric_id, COALESCE(company_id, 0), period, target_value,
	start_date, end_date, status, created_at, updated_at`

func (s *SQLiteStore) CreateProjection(ctx context.Context, p *model.Projection) error {
	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = model.ProjectionActive
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO projections (user_id, metric_id, company_id, period, target_value, start_date, end_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.MetricID, idOrNil(p.CompanyID), string(p.Period), p.TargetValue,
		p.StartDate.Format(model.DayLayout), p.EndDate.Format(model.DayLayout), string(p.Status), now, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert projection")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: projection id")
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetProjection(ctx context.Context, id int64) (*model.Projection, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteProjectionColumns+` FROM projections WHERE id = ? AND deleted = 0`, id)
	p, err := scanSQLiteProjection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: projection %d", id)
	}
	return p, eris.Wrapf(err, "sqlite: get projection %d", id)
}

func (s *SQLiteStore) ActiveProjection(ctx context.Context, userID, metricID int64, asOf time.Time) (*model.Projection, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteProjectionColumns+` FROM projections
		 WHERE user_id = ? AND metric_id = ? AND deleted = 0 AND end_date >= ?
		 ORDER BY id DESC LIMIT 1`,
		userID, metricID, asOf.Format(model.DayLayout))
	p, err := scanSQLiteProjection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, eris.Wrapf(err, "sqlite: active projection user %d metric %d", userID, metricID)
}

func (s *SQLiteStore) ListProjections(ctx context.Context, filter ProjectionFilter) ([]model.Projection, error) {
	query := `SELECT ` + sqliteProjectionColumns + ` FROM projections WHERE deleted = 0`
	var args []any

	if filter.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filter.UserID)
	}
	if filter.CompanyID != nil {
		query += ` AND company_id = ?`
		args = append(args, *filter.CompanyID)
	}
	if len(filter.MetricIDs) > 0 {
		query += ` AND metric_id IN (` + placeholders(len(filter.MetricIDs)) + `)`
		args = appendIDs(args, filter.MetricIDs)
	}
	if filter.Period != "" {
		query += ` AND period = ?`
		args = append(args, string(filter.Period))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.To.IsZero() {
		query += ` AND start_date <= ?`
		args = append(args, filter.To.Format(model.DayLayout))
	}
	if !filter.From.IsZero() {
		query += ` AND end_date >= ?`
		args = append(args, filter.From.Format(model.DayLayout))
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projections")
	}
	defer rows.Close()

	var projections []model.Projection
	for rows.Next() {
		p, err := scanSQLiteProjection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan projection")
		}
		projections = append(projections, *p)
	}
	return projections, eris.Wrap(rows.Err(), "sqlite: list projections iterate")
}

func (s *SQLiteStore) UpdateProjection(ctx context.Context, p *model.Projection) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE projections SET period = ?, target_value = ?, start_date = ?, end_date = ?, status = ?, updated_at = ?
		 WHERE id = ? AND deleted = 0`,
		string(p.Period), p.TargetValue, p.StartDate.Format(model.DayLayout), p.EndDate.Format(model.DayLayout),
		string(p.Status), now, p.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update projection %d", p.ID)
	}
	if err := checkRowsAffected(res, "projection", p.ID); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeleteProjection(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE projections SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete projection %d", id)
	}
	return checkRowsAffected(res, "projection", id)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMetric(row scannable) (*model.Metric, error) {
	var m model.Metric
	var typ, op string
	var v1, v2, companyID, createdBy int64
	err := row.Scan(&m.ID, &m.Name, &typ, &m.IsCalculated, &op, &v1, &v2,
		&m.IsDefault, &companyID, &createdBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = model.MetricType(typ)
	m.Operator = nullableOperator(op)
	m.Value1ID = nullableID(v1)
	m.Value2ID = nullableID(v2)
	m.CompanyID = nullableID(companyID)
	m.CreatedBy = nullableID(createdBy)
	return &m, nil
}

func scanSQLiteDaily(row scannable) (*model.DailyMetricRecord, error) {
	var r model.DailyMetricRecord
	var productID int64
	var price, day string
	err := row.Scan(&r.ID, &r.UserID, &r.MetricID, &productID, &price, &r.Value, &day,
		&r.BatchID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ProductID = nullableID(productID)
	if r.ProductPrice, err = nullablePrice(price); err != nil {
		return nil, eris.Wrapf(err, "parse price fingerprint of daily record %d", r.ID)
	}
	if r.Day, err = time.Parse(model.DayLayout, day); err != nil {
		return nil, eris.Wrapf(err, "parse day of daily record %d", r.ID)
	}
	return &r, nil
}

func scanSQLiteProjection(row scannable) (*model.Projection, error) {
	var p model.Projection
	var companyID int64
	var period, status, start, end string
	err := row.Scan(&p.ID, &p.UserID, &p.MetricID, &companyID, &period, &p.TargetValue,
		&start, &end, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CompanyID = nullableID(companyID)
	p.Period = model.Period(period)
	p.Status = model.ProjectionStatus(status)
	if p.StartDate, err = time.Parse(model.DayLayout, start); err != nil {
		return nil, eris.Wrapf(err, "parse start date of projection %d", p.ID)
	}
	if p.EndDate, err = time.Parse(model.DayLayout, end); err != nil {
		return nil, eris.Wrapf(err, "parse end date of projection %d", p.ID)
	}
	return &p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendIDs(args []any, ids []int64) []any {
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
