// Package events defines the audit events emitted on the message bus.
package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "QUERY_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the common implementation behind the domain constructors.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Event type codes.
const (
	TypeQueryCompleted = "QUERY_COMPLETED"
	TypeQueryRejected  = "QUERY_REJECTED"
)

// NewQueryCompleted records one finished pipeline run.
func NewQueryCompleted(email, sessionID, query string, success bool, candidateCount int, durationMs int64) Event {
	return BaseEvent{
		Type: TypeQueryCompleted,
		Data: map[string]interface{}{
			"email":           email,
			"session_id":      sessionID,
			"query":           query,
			"success":         success,
			"candidate_count": candidateCount,
			"duration_ms":     durationMs,
		},
		OccurredAt: time.Now().UTC(),
	}
}

// NewQueryRejected records a query blocked by policy before retrieval.
func NewQueryRejected(email, sessionID, query, reason string) Event {
	return BaseEvent{
		Type: TypeQueryRejected,
		Data: map[string]interface{}{
			"email":      email,
			"session_id": sessionID,
			"query":      query,
			"reason":     reason,
		},
		OccurredAt: time.Now().UTC(),
	}
}
