package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority governs queue routing and drain order.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ParsePriority accepts the three tiers, case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToUpper(s)) {
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	}
	return "", false
}

// Tier maps a priority to its routing tier. Validation never lets an unknown
// value through; if one shows up anyway it routes to MEDIUM and the second
// return value is false so the caller can log a warning instead of crashing.
func Tier(p Priority) (Priority, bool) {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return PriorityMedium, false
}

// Event is a single validated telemetry reading. Events are immutable once
// constructed; WithRetry returns a modified copy.
//
// Known measurement kinds are temperature, humidity, pressure, voltage and
// current, but Type is an open set: devices may ship new kinds before the
// platform learns them, so unknown kinds are carried through unchanged.
type Event struct {
	EventID    string            `json:"event_id"`
	DeviceID   string            `json:"device_id"`
	Type       string            `json:"type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Priority   Priority          `json:"priority"`
	Timestamp  string            `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retry_count,omitempty"`
}

// DedupKey is the stable identifier used for idempotent downstream writes.
// Redelivered events overwrite rather than duplicate.
func (e Event) DedupKey() string {
	return e.DeviceID + "@" + e.Timestamp
}

// WithRetry returns a copy with the retry count incremented, for requeueing
// after a processing failure.
func (e Event) WithRetry() Event {
	e.RetryCount++
	return e
}

// Encode serializes the event for queue storage.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// Decode reconstructs an event popped from the queue.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}
