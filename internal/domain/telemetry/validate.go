package telemetry

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxMetadataKeys bounds the free-form metadata mapping so serialization and
// storage stay well-defined.
const MaxMetadataKeys = 32

// RawPayload is a decoded JSON object before validation.
type RawPayload map[string]any

// Validate turns a raw payload into an Event or a rejection. It is pure
// except for defaulting: a missing timestamp gets the current UTC time and
// every event receives a synthesized UUID for idempotent downstream keying.
// No partial Event is ever returned on rejection.
func Validate(raw RawPayload) (Event, *ValidationError) {
	deviceID, verr := requireString(raw, "device_id")
	if verr != nil {
		return Event{}, verr
	}

	kind, verr := requireString(raw, "type")
	if verr != nil {
		return Event{}, verr
	}

	unit, verr := requireString(raw, "unit")
	if verr != nil {
		return Event{}, verr
	}

	rawValue, ok := raw["value"]
	if !ok || rawValue == nil {
		return Event{}, errMissingField("value")
	}
	value, ok := rawValue.(float64)
	if !ok {
		return Event{}, errInvalidType("value")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Event{}, errNotFinite("value")
	}

	// An explicitly invalid priority is a rejection, never a silent default.
	priority := PriorityMedium
	if rawPriority, ok := raw["priority"]; ok && rawPriority != nil {
		s, ok := rawPriority.(string)
		if !ok {
			return Event{}, errInvalidType("priority")
		}
		p, ok := ParsePriority(s)
		if !ok {
			return Event{}, errInvalidEnum("priority", s)
		}
		priority = p
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if rawTimestamp, ok := raw["timestamp"]; ok && rawTimestamp != nil {
		s, ok := rawTimestamp.(string)
		if !ok {
			return Event{}, errInvalidType("timestamp")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return Event{}, errInvalidType("timestamp")
		}
		timestamp = s
	}

	var metadata map[string]string
	if rawMetadata, ok := raw["metadata"]; ok && rawMetadata != nil {
		m, ok := rawMetadata.(map[string]any)
		if !ok {
			return Event{}, errInvalidType("metadata")
		}
		if len(m) > MaxMetadataKeys {
			return Event{}, errInvalidType("metadata")
		}
		metadata = make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return Event{}, errInvalidType("metadata")
			}
			metadata[k] = s
		}
	}

	return Event{
		EventID:   uuid.NewString(),
		DeviceID:  deviceID,
		Type:      kind,
		Value:     value,
		Unit:      unit,
		Priority:  priority,
		Timestamp: timestamp,
		Metadata:  metadata,
	}, nil
}

func requireString(raw RawPayload, name string) (string, *ValidationError) {
	v, ok := raw[name]
	if !ok || v == nil {
		return "", errMissingField(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errInvalidType(name)
	}
	if s == "" {
		return "", errMissingField(name)
	}
	return s, nil
}
