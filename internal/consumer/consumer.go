package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
	"github.com/amareshkumar/telemetry-platform/internal/queue"
	"github.com/amareshkumar/telemetry-platform/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_events_processed_total",
		Help: "The total number of events processed and acknowledged",
	})
	eventsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_events_retried_total",
		Help: "The total number of events requeued after a processing failure",
	})
	eventsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_events_dead_lettered_total",
		Help: "The total number of events moved to the dead-letter channel",
	})
	anomaliesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_anomalies_detected_total",
		Help: "The total number of readings outside configured thresholds",
	})
	alertPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_alert_publish_errors_total",
		Help: "The total number of failed alert publish attempts",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "processor_processing_duration_seconds",
		Help:    "Time taken to process one event",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})
)

// AlertPublisher delivers anomaly alerts to the firehose.
type AlertPublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Options configures one consumer instance. Several instances may run in
// parallel against the same queue; remove-on-read pop semantics guarantee no
// popped element is processed twice, and redelivery after a crash is
// absorbed by the store's idempotent keying.
type Options struct {
	Queue        queue.Queue
	Channels     queue.Channels
	Store        store.ProcessedStore
	Detector     *Detector      // optional
	Alerts       AlertPublisher // optional
	MaxRetries   int
	RetryBackoff time.Duration
	PollTimeout  time.Duration
	WorkerID     string
}

// Loop pulls events from the tier channels in strict priority order and
// applies idempotent processing. Strict priority means a sustained flood of
// HIGH events starves MEDIUM and LOW; that is the accepted tradeoff.
type Loop struct {
	opts Options
}

func New(opts Options) *Loop {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	return &Loop{opts: opts}
}

func (l *Loop) Run(ctx context.Context) error {
	slog.Info("consumer started", "worker_id", l.opts.WorkerID)

	for {
		if ctx.Err() != nil {
			return nil
		}

		channel, payload, err := l.opts.Queue.BPopHead(ctx, l.opts.Channels.Ordered(), l.opts.PollTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to pop event", "worker_id", l.opts.WorkerID, "error", err)
			time.Sleep(time.Second)
			continue
		}

		l.handle(ctx, channel, payload)
	}
}

func (l *Loop) handle(ctx context.Context, channel string, payload []byte) {
	started := time.Now()

	event, err := telemetry.Decode(payload)
	if err != nil {
		// Corrupt element: preserve it for inspection instead of dropping.
		slog.Error("dead-lettering undecodable payload", "channel", channel, "error", err)
		l.deadLetter(ctx, payload)
		return
	}

	if err := l.process(ctx, event); err != nil {
		slog.Error("processing failed",
			"device_id", event.DeviceID, "event_id", event.EventID,
			"retry_count", event.RetryCount, "error", err)
		l.retry(ctx, channel, event)
		return
	}

	eventsProcessed.Inc()
	processingDuration.Observe(time.Since(started).Seconds())
	slog.Info("event processed",
		"device_id", event.DeviceID, "event_id", event.EventID,
		"priority", event.Priority, "channel", channel)
}

// process is idempotent: the record key is device_id+timestamp, so a
// redelivered event overwrites its own record.
func (l *Loop) process(ctx context.Context, event telemetry.Event) error {
	rec := store.FromEvent(event)
	if err := l.opts.Store.Put(ctx, event.DedupKey(), rec); err != nil {
		return fmt.Errorf("store record: %w", err)
	}

	if l.opts.Detector != nil {
		if reason, found := l.opts.Detector.Check(event); found {
			anomaliesDetected.Inc()
			l.publishAlert(ctx, event, reason)
		}
	}
	return nil
}

// retry requeues the event at the tail of its tier channel with an
// incremented retry count, or dead-letters it once retries are exhausted.
func (l *Loop) retry(ctx context.Context, channel string, event telemetry.Event) {
	if event.RetryCount >= l.opts.MaxRetries {
		slog.Error("retries exhausted, dead-lettering event",
			"device_id", event.DeviceID, "event_id", event.EventID, "retries", event.RetryCount)
		payload, err := event.Encode()
		if err != nil {
			slog.Error("failed to encode event for dead letter", "event_id", event.EventID, "error", err)
			return
		}
		l.deadLetter(ctx, payload)
		return
	}

	// Exponential backoff before the event becomes visible again.
	time.Sleep(l.opts.RetryBackoff << event.RetryCount)

	retried := event.WithRetry()
	payload, err := retried.Encode()
	if err != nil {
		slog.Error("failed to encode event for requeue", "event_id", event.EventID, "error", err)
		return
	}
	if err := l.opts.Queue.PushTail(ctx, channel, payload); err != nil {
		slog.Error("failed to requeue event", "event_id", event.EventID, "error", err)
		l.deadLetter(ctx, payload)
		return
	}
	eventsRetried.Inc()
}

func (l *Loop) deadLetter(ctx context.Context, payload []byte) {
	if err := l.opts.Queue.PushTail(ctx, l.opts.Channels.DeadLetter, payload); err != nil {
		slog.Error("failed to push to dead-letter channel", "error", err)
		return
	}
	eventsDeadLettered.Inc()
}

type alertMessage struct {
	DeviceID  string  `json:"device_id"`
	EventID   string  `json:"event_id"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Reason    string  `json:"reason"`
	Timestamp string  `json:"timestamp"`
	WorkerID  string  `json:"worker_id,omitempty"`
}

func (l *Loop) publishAlert(ctx context.Context, event telemetry.Event, reason string) {
	slog.Warn("anomaly detected",
		"device_id", event.DeviceID, "type", event.Type,
		"value", event.Value, "reason", reason)

	if l.opts.Alerts == nil {
		return
	}

	value, err := json.Marshal(alertMessage{
		DeviceID:  event.DeviceID,
		EventID:   event.EventID,
		Type:      event.Type,
		Value:     event.Value,
		Unit:      event.Unit,
		Reason:    reason,
		Timestamp: event.Timestamp,
		WorkerID:  l.opts.WorkerID,
	})
	if err != nil {
		alertPublishErrors.Inc()
		slog.Error("failed to marshal alert", "event_id", event.EventID, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := l.opts.Alerts.Publish(sendCtx, []byte(event.DeviceID), value); err != nil {
		alertPublishErrors.Inc()
		slog.Error("failed to publish alert", "event_id", event.EventID, "error", err)
	}
}
