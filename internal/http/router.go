package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-ticketing/internal/auth"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

type RouterConfig struct {
	Logger observability.Logger
	Auth   *auth.Authenticator
	// Limiter and Idempotency may be nil, which disables rate limiting and
	// response replay.
	Limiter            Limiter
	RateLimitPerMinute int
	Idempotency        IdempotencyStore
	RequestTimeout     time.Duration
}

func SetupRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	limited := func(r chi.Router) {
		if cfg.Limiter != nil && cfg.RateLimitPerMinute > 0 {
			r.Use(RateLimitMiddleware(cfg.Limiter, cfg.RateLimitPerMinute))
		}
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)
		r.Get("/events", h.ListEvents)
		r.Post("/admin/login", h.Login)

		r.Group(func(r chi.Router) {
			limited(r)
			if cfg.Idempotency != nil {
				r.Use(IdempotencyMiddleware(cfg.Idempotency, cfg.Logger))
			}
			r.Post("/bookings", h.CreateBooking)
		})
		r.Group(func(r chi.Router) {
			limited(r)
			r.Post("/tickets/{code}/verify", h.VerifyTicket)
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminOnly(cfg.Auth))
			r.Post("/events", h.CreateEvent)
			r.Put("/events/{id}", h.UpdateEvent)
			r.Delete("/events/{id}", h.DeleteEvent)
			r.Get("/events/{id}/bookings", h.ListBookings)
			r.Delete("/bookings/{id}", h.CancelBooking)
			r.Get("/stats", h.Stats)
		})
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
