package flow

import "time"

// RunStatus is the lifecycle status of one workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
	RunTimedOut  RunStatus = "timed_out"
)

// Visit records one entry into a state.
type Visit struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Run is one execution instance of a workflow. The definition is a
// shared read-only reference; Context is exclusively owned by this run
// and mutated only by the executor driving it.
type Run struct {
	ID          string              `json:"id"`
	Definition  *WorkflowDefinition `json:"-"`
	Workflow    string              `json:"workflow"`
	Current     string              `json:"current"`
	Context     map[string]any      `json:"context"`
	Status      RunStatus           `json:"status"`
	StatusError string              `json:"status_error,omitempty"`
	Transitions int                 `json:"transitions"`
	History     []Visit             `json:"history"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// ContextSnapshot returns a shallow copy of the run's variable store,
// hiding internal keys (double-underscore prefix).
func (r *Run) ContextSnapshot() map[string]any {
	snap := make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		if len(k) >= 2 && k[:2] == "__" {
			continue
		}
		snap[k] = v
	}
	return snap
}
