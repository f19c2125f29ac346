package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
	"github.com/amareshkumar/telemetry-platform/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChannels = queue.Channels{
	Prefix:     "telemetry_queue",
	DeadLetter: "telemetry_queue:dead_letter",
}

func validRaw() telemetry.RawPayload {
	return telemetry.RawPayload{
		"device_id": "sensor-001",
		"type":      "temperature",
		"value":     25.5,
		"unit":      "celsius",
		"priority":  "MEDIUM",
	}
}

func TestAdmitTelemetryAccepted(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	uc := NewAdmitTelemetry(q, testChannels)

	event, err := uc.Execute(ctx, validRaw())
	require.NoError(t, err)
	require.NotNil(t, event)

	// The push committed before Execute returned.
	length, err := q.Len(ctx, testChannels.For(telemetry.PriorityMedium))
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	payload, err := q.PopHead(ctx, testChannels.For(telemetry.PriorityMedium))
	require.NoError(t, err)

	popped, err := telemetry.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, *event, popped, "round-trip fidelity")
	assert.Equal(t, "sensor-001", popped.DeviceID)
	assert.Equal(t, 25.5, popped.Value)
	assert.Equal(t, "celsius", popped.Unit)
	assert.Equal(t, telemetry.PriorityMedium, popped.Priority)
}

func TestAdmitTelemetryRoutesByTier(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	uc := NewAdmitTelemetry(q, testChannels)

	for _, p := range []string{"HIGH", "MEDIUM", "LOW"} {
		raw := validRaw()
		raw["priority"] = p
		_, err := uc.Execute(ctx, raw)
		require.NoError(t, err)
	}

	for _, p := range []telemetry.Priority{telemetry.PriorityHigh, telemetry.PriorityMedium, telemetry.PriorityLow} {
		length, err := q.Len(ctx, testChannels.For(p))
		require.NoError(t, err)
		assert.Equal(t, int64(1), length, "channel %s", testChannels.For(p))
	}
}

func TestAdmitTelemetryRejected(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	uc := NewAdmitTelemetry(q, testChannels)

	tests := []struct {
		name   string
		raw    telemetry.RawPayload
		reason string
	}{
		{
			name:   "unrelated fields only",
			raw:    telemetry.RawPayload{"invalid_field": "bad_data"},
			reason: "missing_field(device_id)",
		},
		{
			name: "bad priority",
			raw: telemetry.RawPayload{
				"device_id": "sensor-001", "type": "temperature",
				"value": 25.5, "unit": "celsius", "priority": "URGENT",
			},
			reason: "invalid_enum(priority,URGENT)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := uc.Execute(ctx, tt.raw)

			assert.Nil(t, event)
			var verr *telemetry.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.reason, verr.Reason)

			// Rejection never touches the queue.
			for _, ch := range testChannels.Ordered() {
				length, lerr := q.Len(ctx, ch)
				require.NoError(t, lerr)
				assert.Zero(t, length)
			}
		})
	}
}

func TestAdmitTelemetryQueueFull(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(1)
	uc := NewAdmitTelemetry(q, testChannels)

	_, err := uc.Execute(ctx, validRaw())
	require.NoError(t, err)

	event, err := uc.Execute(ctx, validRaw())
	assert.Nil(t, event)
	assert.ErrorIs(t, err, queue.ErrFull)

	var verr *telemetry.ValidationError
	assert.False(t, errors.As(err, &verr), "backpressure must not look like a validation failure")
}

func TestAdmitTelemetryQueueUnavailable(t *testing.T) {
	uc := NewAdmitTelemetry(unavailableQueue{}, testChannels)

	event, err := uc.Execute(context.Background(), validRaw())

	assert.Nil(t, event)
	var unavailable *queue.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

// unavailableQueue simulates a store that is down.
type unavailableQueue struct{}

func (unavailableQueue) PushTail(context.Context, string, []byte) error {
	return &queue.UnavailableError{Op: "rpush", Err: errors.New("connection refused")}
}

func (unavailableQueue) PopHead(context.Context, string) ([]byte, error) {
	return nil, &queue.UnavailableError{Op: "lpop", Err: errors.New("connection refused")}
}

func (unavailableQueue) BPopHead(context.Context, []string, time.Duration) (string, []byte, error) {
	return "", nil, &queue.UnavailableError{Op: "blpop", Err: errors.New("connection refused")}
}

func (unavailableQueue) Len(context.Context, string) (int64, error) {
	return 0, &queue.UnavailableError{Op: "llen", Err: errors.New("connection refused")}
}
