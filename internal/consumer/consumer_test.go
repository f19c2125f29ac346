package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
	"github.com/amareshkumar/telemetry-platform/internal/queue"
	"github.com/amareshkumar/telemetry-platform/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChannels = queue.Channels{
	Prefix:     "telemetry_queue",
	DeadLetter: "telemetry_queue:dead_letter",
}

func testEvent(deviceID string, priority telemetry.Priority) telemetry.Event {
	return telemetry.Event{
		EventID:   "event-" + deviceID,
		DeviceID:  deviceID,
		Type:      "temperature",
		Value:     25.5,
		Unit:      "celsius",
		Priority:  priority,
		Timestamp: "2026-08-31T10:00:00Z",
	}
}

func enqueue(t *testing.T, q queue.Queue, e telemetry.Event) {
	t.Helper()
	payload, err := e.Encode()
	require.NoError(t, err)
	require.NoError(t, q.PushTail(context.Background(), testChannels.For(e.Priority), payload))
}

// orderedStore records the order in which device ids were stored.
type orderedStore struct {
	mu    sync.Mutex
	inner *store.Memory
	order []string
}

func newOrderedStore() *orderedStore {
	return &orderedStore{inner: store.NewMemory()}
}

func (s *orderedStore) Put(ctx context.Context, key string, rec store.ProcessedRecord) error {
	s.mu.Lock()
	s.order = append(s.order, rec.DeviceID)
	s.mu.Unlock()
	return s.inner.Put(ctx, key, rec)
}

func (s *orderedStore) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type failingStore struct {
	mu       sync.Mutex
	failures int // fail this many Puts before succeeding; -1 fails forever
	inner    *store.Memory
}

func (s *failingStore) Put(ctx context.Context, key string, rec store.ProcessedRecord) error {
	s.mu.Lock()
	fail := s.failures != 0
	if s.failures > 0 {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("downstream write failed")
	}
	return s.inner.Put(ctx, key, rec)
}

func TestLoopStrictPriorityDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory(0)
	st := newOrderedStore()

	// MEDIUM events enqueued first, HIGH after: HIGH still drains first.
	for i := 0; i < 3; i++ {
		enqueue(t, q, testEvent(fmt.Sprintf("med-%d", i), telemetry.PriorityMedium))
	}
	for i := 0; i < 2; i++ {
		enqueue(t, q, testEvent(fmt.Sprintf("high-%d", i), telemetry.PriorityHigh))
	}

	loop := New(Options{
		Queue:       q,
		Channels:    testChannels,
		Store:       st,
		PollTimeout: 50 * time.Millisecond,
		WorkerID:    "test-worker",
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	require.Eventually(t, func() bool { return st.inner.Len() == 5 },
		2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	order := st.Order()
	require.Len(t, order, 5)
	assert.Equal(t, []string{"high-0", "high-1", "med-0", "med-1", "med-2"}, order)
}

func TestLoopIdempotentReprocessing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	loop := New(Options{
		Queue:    queue.NewMemory(0),
		Channels: testChannels,
		Store:    st,
	})

	event := testEvent("sensor-001", telemetry.PriorityMedium)

	// Simulate at-least-once redelivery: the same event processed twice.
	require.NoError(t, loop.process(ctx, event))
	require.NoError(t, loop.process(ctx, event))

	assert.Equal(t, 1, st.Len(), "redelivery overwrites, never duplicates")
	assert.Equal(t, 2, st.Puts())

	rec, ok := st.Get(event.DedupKey())
	require.True(t, ok)
	assert.Equal(t, event.Value, rec.Value)
	assert.Equal(t, event.EventID, rec.EventID)
}

func TestLoopRetryThenSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory(0)
	st := &failingStore{failures: 2, inner: store.NewMemory()}

	enqueue(t, q, testEvent("sensor-001", telemetry.PriorityMedium))

	loop := New(Options{
		Queue:        q,
		Channels:     testChannels,
		Store:        st,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	require.Eventually(t, func() bool { return st.inner.Len() == 1 },
		2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	length, err := q.Len(ctx, testChannels.DeadLetter)
	require.NoError(t, err)
	assert.Zero(t, length, "transient failure recovers without dead-lettering")
}

func TestLoopDeadLettersAfterRetriesExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory(0)
	st := &failingStore{failures: -1, inner: store.NewMemory()}

	enqueue(t, q, testEvent("sensor-001", telemetry.PriorityMedium))

	loop := New(Options{
		Queue:        q,
		Channels:     testChannels,
		Store:        st,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		length, err := q.Len(context.Background(), testChannels.DeadLetter)
		return err == nil && length == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	payload, err := q.PopHead(context.Background(), testChannels.DeadLetter)
	require.NoError(t, err)
	event, err := telemetry.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "sensor-001", event.DeviceID)
	assert.Equal(t, 2, event.RetryCount, "retry count preserved for inspection")

	assert.Zero(t, st.inner.Len(), "nothing stored downstream")
}

func TestLoopDeadLettersUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)

	loop := New(Options{
		Queue:    q,
		Channels: testChannels,
		Store:    store.NewMemory(),
	})

	loop.handle(ctx, testChannels.For(telemetry.PriorityMedium), []byte("{corrupt"))

	length, err := q.Len(ctx, testChannels.DeadLetter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	payload, err := q.PopHead(ctx, testChannels.DeadLetter)
	require.NoError(t, err)
	assert.Equal(t, "{corrupt", string(payload), "raw payload preserved for inspection")
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []alertMessage
}

func (p *recordingPublisher) Publish(_ context.Context, _, value []byte) error {
	var msg alertMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Messages() []alertMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]alertMessage(nil), p.messages...)
}

func TestLoopPublishesAnomalyAlerts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	alerts := &recordingPublisher{}

	loop := New(Options{
		Queue:    queue.NewMemory(0),
		Channels: testChannels,
		Store:    st,
		Detector: NewDetector(Thresholds{TempHigh: 80, TempLow: -20}),
		Alerts:   alerts,
		WorkerID: "test-worker",
	})

	normal := testEvent("sensor-001", telemetry.PriorityMedium)
	require.NoError(t, loop.process(ctx, normal))
	assert.Empty(t, alerts.Messages())

	hot := testEvent("sensor-002", telemetry.PriorityHigh)
	hot.Value = 99.0
	require.NoError(t, loop.process(ctx, hot))

	msgs := alerts.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sensor-002", msgs[0].DeviceID)
	assert.Equal(t, 99.0, msgs[0].Value)
	assert.Contains(t, msgs[0].Reason, "temperature above")

	// The anomalous reading is still stored; alerting never blocks storage.
	assert.Equal(t, 2, st.Len())
}
