package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Queue with the same semantics as the Redis
// implementation, including the per-channel capacity bound and ordered
// multi-channel blocking pop. It keeps the pipeline and the consumer loop
// unit-testable without a running store.
type Memory struct {
	mu       sync.Mutex
	channels map[string][][]byte
	maxLen   int64
	pushed   chan struct{}
}

func NewMemory(maxLen int64) *Memory {
	return &Memory{
		channels: make(map[string][][]byte),
		maxLen:   maxLen,
		pushed:   make(chan struct{}),
	}
}

func (m *Memory) PushTail(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Op: "push", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxLen > 0 && int64(len(m.channels[channel])) >= m.maxLen {
		return ErrFull
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.channels[channel] = append(m.channels[channel], buf)

	// Wake every blocked consumer; they re-check under the lock.
	close(m.pushed)
	m.pushed = make(chan struct{})
	return nil
}

func (m *Memory) PopHead(ctx context.Context, channel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "pop", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked(channel)
}

func (m *Memory) BPopHead(ctx context.Context, channels []string, timeout time.Duration) (string, []byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		for _, ch := range channels {
			if payload, err := m.popLocked(ch); err == nil {
				m.mu.Unlock()
				return ch, payload, nil
			}
		}
		wake := m.pushed
		m.mu.Unlock()

		select {
		case <-wake:
		case <-deadline.C:
			return "", nil, ErrEmpty
		case <-ctx.Done():
			return "", nil, &UnavailableError{Op: "bpop", Err: ctx.Err()}
		}
	}
}

func (m *Memory) Len(_ context.Context, channel string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.channels[channel])), nil
}

func (m *Memory) popLocked(channel string) ([]byte, error) {
	items := m.channels[channel]
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	head := items[0]
	m.channels[channel] = items[1:]
	return head, nil
}
