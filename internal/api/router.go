package api

import (
	"net/http"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires the ingestion surface. requestTimeout bounds one request
// end to end, including the queue push; on expiry the push either already
// committed or never happened, so an abandoned request leaves no half-write.
func NewRouter(h *Handlers, redisClient *redis.Client, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.Timeout(requestTimeout))

	r.Get("/health", h.Health)

	r.With(middleware.Idempotency(redisClient)).Post("/telemetry", h.IngestTelemetry)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
