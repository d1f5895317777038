package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/salestrack/internal/db"
	"github.com/sells-group/salestrack/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	q       db.Querier
	inTx    bool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, e.g. a pgxmock pool in tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	company_id    BIGINT REFERENCES companies(id),
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	deleted       BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT REFERENCES companies(id),
	name       TEXT NOT NULL,
	price      NUMERIC(14,2) NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metrics (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	type          TEXT NOT NULL,
	is_calculated BOOLEAN NOT NULL DEFAULT false,
	operator      TEXT,
	value1_id     BIGINT REFERENCES metrics(id),
	value2_id     BIGINT REFERENCES metrics(id),
	is_default    BOOLEAN NOT NULL DEFAULT false,
	company_id    BIGINT REFERENCES companies(id),
	created_by    BIGINT,
	deleted       BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT metrics_operands_chk CHECK (
		(operator IS NULL AND value1_id IS NULL AND value2_id IS NULL) OR
		(operator IN ('+', '-', '*', '/') AND value1_id IS NOT NULL AND value2_id IS NOT NULL)
	)
);

CREATE TABLE IF NOT EXISTS company_metrics (
	company_id BIGINT NOT NULL REFERENCES companies(id),
	metric_id  BIGINT NOT NULL REFERENCES metrics(id),
	label      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (company_id, metric_id)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	id            BIGSERIAL PRIMARY KEY,
	user_id       BIGINT NOT NULL REFERENCES users(id),
	metric_id     BIGINT NOT NULL REFERENCES metrics(id),
	product_id    BIGINT REFERENCES products(id),
	product_price NUMERIC(14,2),
	value         DOUBLE PRECISION NOT NULL,
	day           DATE NOT NULL,
	batch_id      TEXT NOT NULL DEFAULT '',
	deleted       BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projections (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id),
	metric_id    BIGINT NOT NULL REFERENCES metrics(id),
	company_id   BIGINT REFERENCES companies(id),
	period       TEXT NOT NULL,
	target_value DOUBLE PRECISION NOT NULL,
	start_date   DATE NOT NULL,
	end_date     DATE NOT NULL,
	status       TEXT NOT NULL DEFAULT 'ACTIVE',
	deleted      BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_metrics_name_key ON metrics(name_key) WHERE NOT deleted;
CREATE INDEX IF NOT EXISTS idx_metrics_value1 ON metrics(value1_id);
CREATE INDEX IF NOT EXISTS idx_metrics_value2 ON metrics(value2_id);
CREATE INDEX IF NOT EXISTS idx_daily_metrics_key ON daily_metrics(user_id, metric_id, day) WHERE NOT deleted;
CREATE INDEX IF NOT EXISTS idx_daily_metrics_day ON daily_metrics(day);
CREATE INDEX IF NOT EXISTS idx_projections_user_metric ON projections(user_id, metric_id) WHERE NOT deleted;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil && !s.inTx {
		s.closeFn()
	}
	return nil
}

// txOptions makes concurrent read-modify-write batches fail with 40001
// instead of losing updates; callers retry through resilience.
var txOptions = pgx.TxOptions{IsoLevel: pgx.Serializable}

// WithTx runs fn in a serializable transaction. Inside a transaction fn
// reuses it.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, txOptions)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// --- Companies ---

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO companies (name) VALUES ($1) RETURNING id, created_at`, c.Name,
	).Scan(&c.ID, &c.CreatedAt)
	return eris.Wrap(err, "postgres: insert company")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.q.QueryRow(ctx,
		`SELECT id, name, created_at FROM companies WHERE id = $1 AND NOT deleted`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: company %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return &c, nil
}

func (s *PostgresStore) AttachMetric(ctx context.Context, cm model.CompanyMetric) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO company_metrics (company_id, metric_id, label) VALUES ($1, $2, $3)
		 ON CONFLICT (company_id, metric_id) DO UPDATE SET label = EXCLUDED.label`,
		cm.CompanyID, cm.MetricID, cm.Label)
	return eris.Wrapf(err, "postgres: attach metric %d to company %d", cm.MetricID, cm.CompanyID)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO users (company_id, first_name, last_name, email, password_hash, role)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		u.CompanyID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	return eris.Wrap(err, "postgres: insert user")
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	var companyID int64
	err := s.q.QueryRow(ctx,
		`SELECT id, COALESCE(company_id, 0), first_name, last_name, email, password_hash, role, created_at
		 FROM users WHERE id = $1 AND NOT deleted`, id,
	).Scan(&u.ID, &companyID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: user %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %d", id)
	}
	u.CompanyID = nullableID(companyID)
	return &u, nil
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO products (company_id, name, price) VALUES ($1, $2, $3::numeric) RETURNING id, created_at`,
		p.CompanyID, p.Name, p.Price.String(),
	).Scan(&p.ID, &p.CreatedAt)
	return eris.Wrap(err, "postgres: insert product")
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	var companyID int64
	var price string
	err := s.q.QueryRow(ctx,
		`SELECT id, COALESCE(company_id, 0), name, price::text, created_at FROM products WHERE id = $1 AND NOT deleted`, id,
	).Scan(&p.ID, &companyID, &p.Name, &price, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: product %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %d", id)
	}
	p.CompanyID = nullableID(companyID)
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, eris.Wrapf(err, "postgres: parse price of product %d", id)
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE products SET price = $1::numeric WHERE id = $2 AND NOT deleted`, price.String(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product price %d", id)
	}
	return checkTag(tag.RowsAffected(), "product", id)
}

// --- Metrics ---

const pgMetricColumns = `id, name, type, is_calculated, COALESCE(operator, ''), COALESCE(value1_id, 0),
	COALESCE(value2_id, 0), is_default, COALESCE(company_id, 0), COALESCE(created_by, 0), created_at, updated_at`

func (s *PostgresStore) CreateMetric(ctx context.Context, m *model.Metric) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO metrics (name, name_key, type, is_calculated, operator, value1_id, value2_id,
			is_default, company_id, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`,
		m.Name, model.NameKey(m.Name), string(m.Type), m.IsCalculated, operatorString(m.Operator),
		idOrNil(m.Value1ID), idOrNil(m.Value2ID), m.IsDefault, idOrNil(m.CompanyID), idOrNil(m.CreatedBy),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return eris.Wrap(err, "postgres: insert metric")
}

func (s *PostgresStore) GetMetric(ctx context.Context, id int64) (*model.Metric, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgMetricColumns+` FROM metrics WHERE id = $1 AND NOT deleted`, id)
	m, err := scanMetric(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: metric %d", id)
	}
	return m, eris.Wrapf(err, "postgres: get metric %d", id)
}

func (s *PostgresStore) GetMetricByNameKey(ctx context.Context, key string) (*model.Metric, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgMetricColumns+` FROM metrics WHERE name_key = $1 AND NOT deleted`, key)
	m, err := scanMetric(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: metric named %q", key)
	}
	return m, eris.Wrap(err, "postgres: get metric by name")
}

func (s *PostgresStore) UpdateMetric(ctx context.Context, m *model.Metric) error {
	err := s.q.QueryRow(ctx,
		`UPDATE metrics SET name = $1, name_key = $2, type = $3, is_calculated = $4, operator = $5,
			value1_id = $6, value2_id = $7, is_default = $8, company_id = $9, updated_at = now()
		 WHERE id = $10 AND NOT deleted RETURNING updated_at`,
		m.Name, model.NameKey(m.Name), string(m.Type), m.IsCalculated, operatorString(m.Operator),
		idOrNil(m.Value1ID), idOrNil(m.Value2ID), m.IsDefault, idOrNil(m.CompanyID), m.ID,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: metric %d", m.ID)
	}
	return eris.Wrapf(err, "postgres: update metric %d", m.ID)
}

func (s *PostgresStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error) {
	var b pgQuery
	b.sql = `SELECT ` + pgMetricColumns + ` FROM metrics WHERE NOT deleted`

	if len(filter.IDs) > 0 {
		b.sql += ` AND id = ANY(` + b.arg(filter.IDs) + `)`
	}
	if filter.CompanyID != nil {
		c := b.arg(*filter.CompanyID)
		cond := `company_id = ` + c + ` OR id IN (SELECT metric_id FROM company_metrics WHERE company_id = ` + c + `)`
		if filter.IncludeDefault {
			cond += ` OR is_default`
		}
		b.sql += ` AND (` + cond + `)`
	}
	if len(filter.OperandOf) > 0 {
		ops := b.arg(filter.OperandOf)
		b.sql += ` AND is_calculated AND (value1_id = ANY(` + ops + `) OR value2_id = ANY(` + ops + `))`
	}
	if filter.CalculatedOnly {
		b.sql += ` AND is_calculated`
	}
	if filter.Name != "" {
		b.sql += ` AND name ILIKE '%' || ` + b.arg(filter.Name) + ` || '%'`
	}
	b.sql += ` ORDER BY id LIMIT ` + b.arg(listLimit(filter.Limit)) + ` OFFSET ` + b.arg(filter.Offset)

	rows, err := s.q.Query(ctx, b.sql, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var metrics []model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		metrics = append(metrics, *m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

func (s *PostgresStore) DeleteMetric(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE metrics SET deleted = true, updated_at = now() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete metric %d", id)
	}
	return checkTag(tag.RowsAffected(), "metric", id)
}

// --- Daily metric records ---

const pgDailyColumns = `id, user_id, metric_id, COALESCE(product_id, 0), COALESCE(product_price::text, ''),
	value, day, batch_id, created_at, updated_at`

func (s *PostgresStore) LatestDailyRecord(ctx context.Context, userID, metricID int64, day time.Time) (*model.DailyMetricRecord, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgDailyColumns+` FROM daily_metrics
		 WHERE user_id = $1 AND metric_id = $2 AND day = $3 AND NOT deleted
		 ORDER BY id DESC LIMIT 1`,
		userID, metricID, day)
	r, err := scanPGDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, eris.Wrapf(err, "postgres: latest daily record user %d metric %d", userID, metricID)
}

func (s *PostgresStore) CreateDailyRecord(ctx context.Context, r *model.DailyMetricRecord) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO daily_metrics (user_id, metric_id, product_id, product_price, value, day, batch_id)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7) RETURNING id, created_at, updated_at`,
		r.UserID, r.MetricID, idOrNil(r.ProductID), priceString(r.ProductPrice), r.Value, r.Day, r.BatchID,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return eris.Wrap(err, "postgres: insert daily record")
}

func (s *PostgresStore) UpdateDailyRecordValue(ctx context.Context, id int64, value float64) (*model.DailyMetricRecord, error) {
	row := s.q.QueryRow(ctx,
		`UPDATE daily_metrics SET value = $1, updated_at = now() WHERE id = $2 AND NOT deleted
		 RETURNING `+pgDailyColumns,
		value, id)
	r, err := scanPGDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: daily record %d", id)
	}
	return r, eris.Wrapf(err, "postgres: update daily record %d", id)
}

func (s *PostgresStore) GetDailyRecord(ctx context.Context, id int64) (*model.DailyMetricRecord, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgDailyColumns+` FROM daily_metrics WHERE id = $1 AND NOT deleted`, id)
	r, err := scanPGDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: daily record %d", id)
	}
	return r, eris.Wrapf(err, "postgres: get daily record %d", id)
}

func (s *PostgresStore) ListDailyRecords(ctx context.Context, filter DailyRecordFilter) ([]model.DailyMetricRecord, error) {
	var b pgQuery
	b.sql = `SELECT ` + pgDailyColumns + ` FROM daily_metrics WHERE NOT deleted`

	if filter.UserID != nil {
		b.sql += ` AND user_id = ` + b.arg(*filter.UserID)
	}
	if len(filter.MetricIDs) > 0 {
		b.sql += ` AND metric_id = ANY(` + b.arg(filter.MetricIDs) + `)`
	}
	if !filter.From.IsZero() {
		b.sql += ` AND day >= ` + b.arg(filter.From)
	}
	if !filter.To.IsZero() {
		b.sql += ` AND day <= ` + b.arg(filter.To)
	}
	b.sql += ` ORDER BY day, id LIMIT ` + b.arg(listLimit(filter.Limit)) + ` OFFSET ` + b.arg(filter.Offset)

	rows, err := s.q.Query(ctx, b.sql, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily records")
	}
	defer rows.Close()

	var records []model.DailyMetricRecord
	for rows.Next() {
		r, err := scanPGDaily(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list daily records iterate")
}

func (s *PostgresStore) CountDailyRecords(ctx context.Context, metricID int64) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM daily_metrics WHERE metric_id = $1 AND NOT deleted`, metricID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count daily records for metric %d", metricID)
}

func (s *PostgresStore) SumDailyValues(ctx context.Context, userID, metricID int64, from, to time.Time) (float64, error) {
	var sum float64
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(value), 0)::float8 FROM daily_metrics
		 WHERE user_id = $1 AND metric_id = $2 AND NOT deleted AND day >= $3 AND day <= $4`,
		userID, metricID, from, to,
	).Scan(&sum)
	return sum, eris.Wrapf(err, "postgres: sum daily values user %d metric %d", userID, metricID)
}

func (s *PostgresStore) DeleteDailyRecord(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE daily_metrics SET deleted = true, updated_at = now() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete daily record %d", id)
	}
	return checkTag(tag.RowsAffected(), "daily record", id)
}

// --- Projections ---

const pgProjectionColumns = `id, user_id, metric_id, COALESCE(company_id, 0), period, target_value,
	start_date, end_date, status, created_at, updated_at`

func (s *PostgresStore) CreateProjection(ctx context.Context, p *model.Projection) error {
	if p.Status == "" {
		p.Status = model.ProjectionActive
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO projections (user_id, metric_id, company_id, period, target_value, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		p.UserID, p.MetricID, idOrNil(p.CompanyID), string(p.Period), p.TargetValue,
		p.StartDate, p.EndDate, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return eris.Wrap(err, "postgres: insert projection")
}

func (s *PostgresStore) GetProjection(ctx context.Context, id int64) (*model.Projection, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgProjectionColumns+` FROM projections WHERE id = $1 AND NOT deleted`, id)
	p, err := scanPGProjection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: projection %d", id)
	}
	return p, eris.Wrapf(err, "postgres: get projection %d", id)
}

func (s *PostgresStore) ActiveProjection(ctx context.Context, userID, metricID int64, asOf time.Time) (*model.Projection, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgProjectionColumns+` FROM projections
		 WHERE user_id = $1 AND metric_id = $2 AND NOT deleted AND end_date >= $3
		 ORDER BY id DESC LIMIT 1`,
		userID, metricID, asOf)
	p, err := scanPGProjection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, eris.Wrapf(err, "postgres: active projection user %d metric %d", userID, metricID)
}

func (s *PostgresStore) ListProjections(ctx context.Context, filter ProjectionFilter) ([]model.Projection, error) {
	var b pgQuery
	b.sql = `SELECT ` + pgProjectionColumns + ` FROM projections WHERE NOT deleted`

	if filter.UserID != nil {
		b.sql += ` AND user_id = ` + b.arg(*filter.UserID)
	}
	if filter.CompanyID != nil {
		b.sql += ` AND company_id = ` + b.arg(*filter.CompanyID)
	}
	if len(filter.MetricIDs) > 0 {
		b.sql += ` AND metric_id = ANY(` + b.arg(filter.MetricIDs) + `)`
	}
	if filter.Period != "" {
		b.sql += ` AND period = ` + b.arg(string(filter.Period))
	}
	if filter.Status != "" {
		b.sql += ` AND status = ` + b.arg(string(filter.Status))
	}
	if !filter.To.IsZero() {
		b.sql += ` AND start_date <= ` + b.arg(filter.To)
	}
	if !filter.From.IsZero() {
		b.sql += ` AND end_date >= ` + b.arg(filter.From)
	}
	b.sql += ` ORDER BY id LIMIT ` + b.arg(listLimit(filter.Limit)) + ` OFFSET ` + b.arg(filter.Offset)

	rows, err := s.q.Query(ctx, b.sql, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projections")
	}
	defer rows.Close()

	var projections []model.Projection
	for rows.Next() {
		p, err := scanPGProjection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan projection")
		}
		projections = append(projections, *p)
	}
	return projections, eris.Wrap(rows.Err(), "postgres: list projections iterate")
}

func (s *PostgresStore) UpdateProjection(ctx context.Context, p *model.Projection) error {
	err := s.q.QueryRow(ctx,
		`UPDATE projections SET period = $1, target_value = $2, start_date = $3, end_date = $4, status = $5,
			updated_at = now()
		 WHERE id = $6 AND NOT deleted RETURNING updated_at`,
		string(p.Period), p.TargetValue, p.StartDate, p.EndDate, string(p.Status), p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: projection %d", p.ID)
	}
	return eris.Wrapf(err, "postgres: update projection %d", p.ID)
}

func (s *PostgresStore) DeleteProjection(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE projections SET deleted = true, updated_at = now() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete projection %d", id)
	}
	return checkTag(tag.RowsAffected(), "projection", id)
}

// --- helpers ---

// pgQuery accumulates positional arguments while a query is assembled.
type pgQuery struct {
	sql  string
	args []any
}

func (q *pgQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func checkTag(n int64, entity string, id int64) error {
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func scanPGDaily(row scannable) (*model.DailyMetricRecord, error) {
	var r model.DailyMetricRecord
	var productID int64
	var price string
	err := row.Scan(&r.ID, &r.UserID, &r.MetricID, &productID, &price, &r.Value, &r.Day,
		&r.BatchID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ProductID = nullableID(productID)
	if r.ProductPrice, err = nullablePrice(strings.TrimSpace(price)); err != nil {
		return nil, eris.Wrapf(err, "parse price fingerprint of daily record %d", r.ID)
	}
	return &r, nil
}

func scanPGProjection(row scannable) (*model.Projection, error) {
	var p model.Projection
	var companyID int64
	var period, status string
	err := row.Scan(&p.ID, &p.UserID, &p.MetricID, &companyID, &period, &p.TargetValue,
		&p.StartDate, &p.EndDate, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CompanyID = nullableID(companyID)
	p.Period = model.Period(period)
	p.Status = model.ProjectionStatus(status)
	return &p, nil
}
