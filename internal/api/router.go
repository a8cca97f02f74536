package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type RouterConfig struct {
	Bookings      BookingService
	Catalog       catalog.Store
	Postgres      Pinger
	Redis         Pinger
	Webhook       http.Handler
	Metrics       http.Handler
	SessionSecret string
	Location      *time.Location
	Logger        *logging.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	h := &handlers{
		bookings: cfg.Bookings,
		catalog:  cfg.Catalog,
		validate: newRequestValidator(),
		loc:      cfg.Location,
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/doctors", h.listDoctors)
	r.Get("/doctors/{id}", h.getDoctor)
	r.Get("/services", h.listServices)

	r.Group(func(r chi.Router) {
		r.Use(SessionJWT(cfg.SessionSecret))

		r.Get("/doctors/{id}/appointments", h.doctorAppointments)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/confirm", h.transition(booking.StatusConfirmed))
			r.Post("/{id}/cancel", h.transition(booking.StatusCancelled))
			r.Post("/{id}/complete", h.transition(booking.StatusCompleted))
		})
	})

	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/telegram/webhook", cfg.Webhook)
	}

	return r
}
