package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

const defaultRequestTimeout = 15 * time.Second

type RouterConfig struct {
	Scheduler Scheduler
	Chat      ChatResponder // nil disables /chat with 503
	Postgres  Pinger
	Redis     *redis.Client
	Env       string
	Version   string

	Logger   *logging.Logger
	Metrics  *metrics.SchedulingMetrics
	Gatherer prometheus.Gatherer // defaults to the global registry

	RequestTimeout time.Duration
	ChatTimeout    time.Duration
	ChatRateLimit  float64
	ChatRateBurst  int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 30 * time.Second
	}
	if cfg.ChatRateLimit <= 0 {
		cfg.ChatRateLimit = 1
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	logger := cfg.Logger.With("component", "http")

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version, logger)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/availability", availabilityHandler(cfg.Scheduler, logger))
		r.Post("/appointments", bookAppointmentHandler(cfg.Scheduler, logger))
		r.Post("/appointments/reschedule", rescheduleAppointmentHandler(cfg.Scheduler, logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Scheduler, logger))
		r.Get("/patients", listPatientsHandler(cfg.Scheduler, logger))
		r.Get("/dentists", listDentistsHandler(cfg.Scheduler, logger))
		r.Get("/dentists/{id}", getDentistHandler(cfg.Scheduler, logger))
	})

	limiter := newIPRateLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst)
	r.With(limiter.Middleware, middleware.Timeout(cfg.ChatTimeout)).
		Post("/chat", chatHandler(cfg.Chat, logger))

	return r
}
