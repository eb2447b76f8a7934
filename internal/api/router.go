package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

type RouterConfig struct {
	Search       DoctorSearcher
	Doctors      DoctorReader
	Appointments AppointmentService
	Logger       *logging.Logger

	// Optional. Nil disables the corresponding readiness check or endpoint.
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("http")

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/doctors", searchDoctorsHandler(cfg.Search, logger))
	r.Get("/doctors/{id}", getDoctorHandler(cfg.Doctors, logger))

	svc := cfg.Appointments
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(svc, logger))
		r.Get("/", listAppointmentsHandler(svc, logger))
		r.Get("/{id}", getAppointmentHandler(svc, logger))
		r.Post("/{id}/confirm", transitionHandler(svc.Confirm, logger))
		r.Post("/{id}/complete", transitionHandler(svc.Complete, logger))
		r.Post("/{id}/cancel", cancelAppointmentHandler(svc, logger))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(svc, logger))
	})

	return r
}
