package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
	"github.com/amareshkumar/telemetry-platform/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_events_accepted_total",
		Help: "The total number of events admitted to the queue",
	})
	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_events_rejected_total",
		Help: "The total number of payloads rejected by validation",
	})
	eventsUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_events_unavailable_total",
		Help: "The total number of admissions refused because the queue was unavailable or full",
	})
	admissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_admission_duration_seconds",
		Help:    "Time taken from validation through queue push",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.5},
	})
)

// AdmitTelemetry runs the validate-classify-enqueue sequence for one inbound
// payload. Each invocation is independent; the queue store is the only
// shared resource and its push is atomic, so no cross-request locking exists
// here.
type AdmitTelemetry struct {
	queue    queue.Queue
	channels queue.Channels
}

func NewAdmitTelemetry(q queue.Queue, channels queue.Channels) *AdmitTelemetry {
	return &AdmitTelemetry{
		queue:    q,
		channels: channels,
	}
}

// Execute returns the admitted event, or a *telemetry.ValidationError on
// rejection (the queue is never touched), or a queue error when the push
// could not happen. It never retries: retry policy on transient faults
// belongs to the caller. By the time a non-nil event is returned the push
// has fully committed.
func (uc *AdmitTelemetry) Execute(ctx context.Context, raw telemetry.RawPayload) (*telemetry.Event, error) {
	started := time.Now()

	event, verr := telemetry.Validate(raw)
	if verr != nil {
		eventsRejected.Inc()
		return nil, verr
	}

	tier, ok := telemetry.Tier(event.Priority)
	if !ok {
		slog.Warn("unrecognized priority tier, routing to MEDIUM",
			"device_id", event.DeviceID, "priority", event.Priority)
	}

	payload, err := event.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	if err := uc.queue.PushTail(ctx, uc.channels.For(tier), payload); err != nil {
		eventsUnavailable.Inc()
		return nil, fmt.Errorf("push event: %w", err)
	}

	eventsAccepted.Inc()
	admissionDuration.Observe(time.Since(started).Seconds())
	return &event, nil
}
