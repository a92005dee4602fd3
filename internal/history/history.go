// Package history persists completed run records. The memory store is
// the default; a Postgres store is selected when a database URL is
// configured.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/taehoon/flowkit/internal/flow"
)

// ErrNotFound indicates a run record that does not exist.
var ErrNotFound = errors.New("run record not found")

// Record is the durable summary of one run.
type Record struct {
	ID          string         `json:"id"`
	Workflow    string         `json:"workflow"`
	Status      flow.RunStatus `json:"status"`
	FinalState  string         `json:"final_state"`
	Context     map[string]any `json:"context"`
	Error       string         `json:"error,omitempty"`
	Transitions int            `json:"transitions"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// FromRun builds a Record from a finished run.
func FromRun(run *flow.Run) *Record {
	return &Record{
		ID:          run.ID,
		Workflow:    run.Workflow,
		Status:      run.Status,
		FinalState:  run.Current,
		Context:     run.ContextSnapshot(),
		Error:       run.StatusError,
		Transitions: run.Transitions,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// Repository abstracts persistence for run records.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records newest first. workflow filters by workflow
	// name when non-empty ("" = all).
	List(ctx context.Context, workflow string, limit, offset int) ([]*Record, int, error)
}
