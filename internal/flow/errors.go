package flow

import "errors"

// Sentinel errors shared across the engine packages. Callers match them
// with errors.Is; wrapping adds the human-readable detail.
var (
	// ErrNotFound indicates a workflow name that no resolution tier knows.
	ErrNotFound = errors.New("workflow not found")

	// ErrStateNotFound indicates a transition target that does not exist
	// in the definition. Always a definition bug, always fatal.
	ErrStateNotFound = errors.New("state not found")

	// ErrNoTransition indicates that no outgoing transition of a
	// non-terminal state matched.
	ErrNoTransition = errors.New("no matching transition")

	// ErrTransitionLimit indicates the run exceeded the transition ceiling.
	ErrTransitionLimit = errors.New("transition limit exceeded")

	// ErrAborted indicates an explicit abort action or external cancellation.
	ErrAborted = errors.New("run aborted")

	// ErrManualIntervention indicates a pausing action this run cannot
	// auto-resume.
	ErrManualIntervention = errors.New("manual intervention required")
)
