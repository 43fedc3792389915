package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted by the decision processor.
// Notification creation is driven entirely by these events, keeping
// delivery concerns out of the transition logic.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	InstanceID    string                 `json:"instance_id"`
	StepID        string                 `json:"step_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// New creates a new domain event with auto-generated ID and timestamp
func New(eventType Type, instanceID, stepID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		InstanceID:    instanceID,
		StepID:        stepID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewWithCorrelation creates an event linked to a correlation chain
func NewWithCorrelation(eventType Type, instanceID, stepID string, payload map[string]interface{}, correlationID string) *Event {
	evt := New(eventType, instanceID, stepID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// PayloadString retrieves a string value from the payload
func (e *Event) PayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// PayloadInt retrieves an int value from the payload
func (e *Event) PayloadInt(key string) int {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// PayloadFloat retrieves a float64 value from the payload
func (e *Event) PayloadFloat(key string) float64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0.0
}
