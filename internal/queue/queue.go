// Package queue adapts the durable FIFO store the admission pipeline pushes
// into and the processor drains. One logical channel exists per priority
// tier plus a dead-letter channel; the store itself is a black box reachable
// through push-to-tail / pop-from-head / length.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
)

var (
	// ErrEmpty reports a pop from a channel with nothing to deliver.
	ErrEmpty = errors.New("queue: empty")

	// ErrFull reports a push into a channel at its configured capacity.
	ErrFull = errors.New("queue: channel at capacity")
)

// UnavailableError marks a transient store fault. The push or pop never
// partially happened, so the caller may retry at its discretion.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("queue unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Queue is the store interface. Push and pop are atomic: no two concurrent
// pops return the same element and no push is observable half-applied.
type Queue interface {
	// PushTail appends payload to the channel. Returns ErrFull when the
	// channel is at capacity, or *UnavailableError on a store fault.
	PushTail(ctx context.Context, channel string, payload []byte) error

	// PopHead removes and returns the oldest element, or ErrEmpty.
	PopHead(ctx context.Context, channel string) ([]byte, error)

	// BPopHead blocks up to timeout for an element on any of the given
	// channels, honoring their order: an element on channels[0] is always
	// delivered before one on channels[1]. Returns the source channel.
	BPopHead(ctx context.Context, channels []string, timeout time.Duration) (string, []byte, error)

	// Len returns the number of elements in the channel.
	Len(ctx context.Context, channel string) (int64, error)
}

// Channels derives tier channel names from a common prefix,
// e.g. telemetry_queue:high.
type Channels struct {
	Prefix     string
	DeadLetter string
}

// For returns the channel for a priority tier.
func (c Channels) For(p telemetry.Priority) string {
	return c.Prefix + ":" + strings.ToLower(string(p))
}

// Ordered returns the tier channels in strict drain order, HIGH first.
func (c Channels) Ordered() []string {
	return []string{
		c.For(telemetry.PriorityHigh),
		c.For(telemetry.PriorityMedium),
		c.For(telemetry.PriorityLow),
	}
}
