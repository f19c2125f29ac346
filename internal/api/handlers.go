package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
	"github.com/amareshkumar/telemetry-platform/internal/usecase"

	"github.com/redis/go-redis/v9"
)

type Handlers struct {
	admitUC     *usecase.AdmitTelemetry
	redisClient *redis.Client
}

func NewHandlers(admitUC *usecase.AdmitTelemetry, redisClient *redis.Client) *Handlers {
	return &Handlers{
		admitUC:     admitUC,
		redisClient: redisClient,
	}
}

// IngestTelemetry terminates POST /telemetry. Outcome mapping:
// accepted 200, validation rejection 422, non-object body 400,
// queue unavailable 503. A caller implementing retry logic can rely on 4xx
// never being transient and on 503 never being a validation failure.
func (h *Handlers) IngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var raw telemetry.RawPayload
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, telemetry.ErrMalformedRequest.Reason)
		return
	}

	event, err := h.admitUC.Execute(r.Context(), raw)
	if err != nil {
		var verr *telemetry.ValidationError
		if errors.As(err, &verr) {
			slog.Info("telemetry rejected", "reason", verr.Reason)
			writeError(w, http.StatusUnprocessableEntity, verr.Reason)
			return
		}

		slog.Error("telemetry enqueue failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "accepted",
		"event_id": event.EventID,
	})
}

// Health reports ready only when the queue connection answers a ping.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("health check: queue unreachable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "queue_unavailable")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
