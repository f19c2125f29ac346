// Package store defines the downstream processed-record store the consumer
// writes into. Put is idempotent: repeated writes for the same key are
// overwrites, never duplicates, which is what makes at-least-once redelivery
// safe.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
)

// ProcessedRecord is the materialized form of a consumed event.
type ProcessedRecord struct {
	EventID     string
	DeviceID    string
	Type        string
	Value       float64
	Unit        string
	Priority    telemetry.Priority
	RecordedAt  string
	Metadata    map[string]string
	ProcessedAt time.Time
}

// FromEvent builds the record for an event, stamped with the processing time.
func FromEvent(e telemetry.Event) ProcessedRecord {
	return ProcessedRecord{
		EventID:     e.EventID,
		DeviceID:    e.DeviceID,
		Type:        e.Type,
		Value:       e.Value,
		Unit:        e.Unit,
		Priority:    e.Priority,
		RecordedAt:  e.Timestamp,
		Metadata:    e.Metadata,
		ProcessedAt: time.Now().UTC(),
	}
}

// ProcessedStore is keyed by the event's dedup key (device id + timestamp).
type ProcessedStore interface {
	Put(ctx context.Context, key string, rec ProcessedRecord) error
}

// Memory is the in-process store used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]ProcessedRecord
	puts    int
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]ProcessedRecord)}
}

func (m *Memory) Put(_ context.Context, key string, rec ProcessedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec
	m.puts++
	return nil
}

// Get reports the stored record for a key, if any.
func (m *Memory) Get(key string) (ProcessedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	return rec, ok
}

// Len is the number of distinct keys stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Puts is the total number of Put calls, counting overwrites.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
