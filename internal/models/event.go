package models

import "time"

// EventKind classifies a progress event.
type EventKind string

const (
	EventProgress     EventKind = "progress"
	EventToolActivity EventKind = "tool_activity"
	EventHeartbeat    EventKind = "heartbeat"
	EventError        EventKind = "error"
	EventDone         EventKind = "done"
)

// Event is one immutable entry in a session's event log. Seq starts at 1
// and increases by exactly 1 per append within a session.
type Event struct {
	Seq       int       `json:"seq"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
