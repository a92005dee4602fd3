// Package action executes one state's declared action against the
// run's variable store. It is independent of the interpreter loop: the
// engine calls Dispatch per state and merges the outcome.
package action

import (
	"errors"
	"fmt"

	"github.com/taehoon/flowkit/internal/flow"
)

// ErrVariable indicates a malformed template or expression. Dispatch
// never panics on bad input; it surfaces this instead.
var ErrVariable = errors.New("variable error")

// Error wraps a failed dispatch with the state and action kind it
// belongs to.
type Error struct {
	State string
	Kind  flow.ActionKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state %q: %s action: %v", e.State, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome is the result of one dispatch: variables to merge into the
// run context plus a human-readable summary. An Outcome may accompany
// an error (e.g. captured output of a failed shell command).
type Outcome struct {
	Updates map[string]any
	Summary string
}

func emptyOutcome() *Outcome {
	return &Outcome{Updates: map[string]any{}}
}
