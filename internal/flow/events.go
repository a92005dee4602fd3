package flow

import "time"

// EventType identifies a lifecycle notification.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventStateStarted   EventType = "state.started"
	EventStateCompleted EventType = "state.completed"
	EventRunCompleted   EventType = "run.completed"
	EventRunError       EventType = "run.error"
)

// Event is a lifecycle notification emitted during a run. Events are
// delivered to the listener in generation order: run.started is always
// first, run.completed or run.error always last, and state.started
// always precedes that state's state.completed.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	State     string         `json:"state,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
