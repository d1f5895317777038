// Package api exposes the metric engine over HTTP.
package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/metric"
	"github.com/sells-group/salestrack/internal/projection"
	"github.com/sells-group/salestrack/internal/resolver"
	"github.com/sells-group/salestrack/internal/store"
)

// Config tunes the HTTP surface.
type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// Services are the domain services behind the routes.
type Services struct {
	Store       store.Store
	Metrics     *metric.Service
	Resolver    *resolver.Service
	Projections *projection.Service
	Dashboard   *dashboard.Service
}

// Server routes HTTP requests to the domain services.
type Server struct {
	svc      Services
	cfg      Config
	validate *validator.Validate
	limiter  *rate.Limiter
}

// NewServer creates a Server. A non-positive rate disables write limiting.
func NewServer(svc Services, cfg Config) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{svc: svc, cfg: cfg, validate: v}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limitWrites)

		r.Route("/metrics", func(r chi.Router) {
			r.Post("/", s.createMetric)
			r.Get("/", s.listMetrics)
			r.Get("/{id}", s.getMetric)
			r.Patch("/{id}", s.updateMetric)
			r.Delete("/{id}", s.deleteMetric)
		})

		r.Route("/daily-metrics", func(r chi.Router) {
			r.Post("/", s.submitDailyMetrics)
			r.Get("/", s.listDailyMetrics)
			r.Get("/{id}", s.getDailyMetric)
			r.Delete("/{id}", s.deleteDailyMetric)
		})

		r.Route("/projections", func(r chi.Router) {
			r.Post("/", s.createProjection)
			r.Get("/", s.listProjections)
			r.Get("/{id}", s.getProjection)
			r.Patch("/{id}", s.updateProjection)
			r.Delete("/{id}", s.deleteProjection)
		})

		r.Get("/dashboard", s.getDashboard)
		r.Get("/pacing", s.getPacing)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
