package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/metric"
	"github.com/sells-group/salestrack/internal/projection"
	"github.com/sells-group/salestrack/internal/resilience"
	"github.com/sells-group/salestrack/internal/resolver"
	"github.com/sells-group/salestrack/internal/store"
)

const defaultSQLitePath = "salestrack.db"

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres database url is required (SALESTRACK_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// services are the domain services built from cfg over one store.
type services struct {
	store       store.Store
	metrics     *metric.Service
	resolver    *resolver.Service
	projections *projection.Service
	dashboard   *dashboard.Service
}

func newServices(st store.Store) (*services, error) {
	loc, err := cfg.Metrics.Location()
	if err != nil {
		return nil, err
	}
	return &services{
		store:   st,
		metrics: metric.NewService(st),
		resolver: resolver.NewService(st, resolver.Config{
			MaxDepth: cfg.Metrics.MaxDependencyDepth,
			Location: loc,
			Retry:    resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		}),
		projections: projection.NewService(st, projection.WithLocation(loc)),
		dashboard: dashboard.NewService(st, dashboard.Config{
			WindowMonths: cfg.Dashboard.WindowMonths,
			MonthKey:     dashboard.MonthKey(cfg.Dashboard.MonthKey),
			Location:     loc,
		}),
	}, nil
}

// openServices opens the configured store, migrates it and builds services.
// The caller closes the returned store.
func openServices(ctx context.Context) (*services, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	svc, err := newServices(st)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return svc, nil
}
