// Package engine drives workflow runs from their initial state to a
// terminal outcome. Each run executes on its own goroutine with an
// exclusively owned context; the definition is shared read-only.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/taehoon/flowkit/internal/action"
	"github.com/taehoon/flowkit/internal/eval"
	"github.com/taehoon/flowkit/internal/flow"
)

// DefaultMaxTransitions is the transition ceiling applied when no
// explicit limit is configured. It is the sole structural safety net
// against runaway cycles; cyclic definitions are accepted by design.
const DefaultMaxTransitions = 1000

// Dispatcher executes one state's action against the run context.
// Satisfied by *action.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, state *flow.State, runCtx map[string]any) (*action.Outcome, error)
}

// Executor is the workflow interpreter.
type Executor struct {
	dispatcher     Dispatcher
	marker         *Marker
	maxTransitions int
}

// New creates an Executor. maxTransitions <= 0 selects
// DefaultMaxTransitions; a nil marker disables the failure artifact.
func New(dispatcher Dispatcher, marker *Marker, maxTransitions int) *Executor {
	if maxTransitions <= 0 {
		maxTransitions = DefaultMaxTransitions
	}
	return &Executor{
		dispatcher:     dispatcher,
		marker:         marker,
		maxTransitions: maxTransitions,
	}
}

// Start creates a run for def: context seeded with declared parameter
// defaults, caller params merged over them (unrecognized keys pass
// through for forward compatibility), current state set to the initial
// state. Nothing is dispatched yet. A required parameter without a
// default that the caller did not supply is an error naming that
// parameter, as is a supplied value that cannot be coerced to the
// parameter's declared type.
func (e *Executor) Start(def *flow.WorkflowDefinition, params map[string]any) (*flow.Run, error) {
	runCtx := make(map[string]any)
	for _, p := range def.Parameters {
		if p.Default != nil {
			runCtx[p.Name] = p.Default
		}
	}
	for k, v := range params {
		runCtx[k] = v
	}
	for _, p := range def.Parameters {
		if val, ok := runCtx[p.Name]; ok {
			coerced, err := coerceParameter(p, val)
			if err != nil {
				return nil, err
			}
			runCtx[p.Name] = coerced
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required parameter %q", p.Name)
		}
	}

	return &flow.Run{
		ID:         uuid.NewString(),
		Definition: def,
		Workflow:   def.Name,
		Current:    def.Initial(),
		Context:    runCtx,
		Status:     flow.RunRunning,
		StartedAt:  time.Now(),
	}, nil
}

// coerceParameter converts a supplied value to the parameter's declared
// type. CLI flags arrive as strings, so "5" satisfies a number
// parameter and "true" a boolean one; a value that cannot be converted
// is an error naming the parameter. Parameters without a declared type
// pass through unchanged.
func coerceParameter(p flow.ParameterSpec, val any) (any, error) {
	s, isString := val.(string)
	switch p.Type {
	case "number":
		switch val.(type) {
		case int, int64, float64:
			return val, nil
		}
		if isString {
			if n, err := strconv.Atoi(s); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be a number, got %v", p.Name, val)
	case "boolean", "bool":
		if b, ok := val.(bool); ok {
			return b, nil
		}
		if isString {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be a boolean, got %v", p.Name, val)
	case "string":
		if isString {
			return s, nil
		}
		return fmt.Sprintf("%v", val), nil
	default:
		return val, nil
	}
}

// Execute drives run to completion. Cancellation is cooperative:
// observed between states and immediately after a dispatch returns,
// never preemptively mid-action. The notifier receives one event per
// lifecycle point in generation order and is closed before Execute
// returns. On any fatal outcome the failure marker is written.
func (e *Executor) Execute(ctx context.Context, run *flow.Run, notifier *Notifier) error {
	defer notifier.Close()

	e.publish(notifier, run, flow.EventRunStarted, "", nil)

	for {
		if ctx.Err() != nil {
			return e.fail(notifier, run, flow.RunAborted,
				fmt.Errorf("%w: cancelled before state %q", flow.ErrAborted, run.Current))
		}

		state, ok := run.Definition.States[run.Current]
		if !ok {
			// Dangling transition target: a definition bug, always fatal.
			return e.fail(notifier, run, flow.RunFailed,
				fmt.Errorf("%w: %q", flow.ErrStateNotFound, run.Current))
		}
		run.History = append(run.History, flow.Visit{State: state.ID, At: time.Now()})

		if state.Terminal {
			run.Status = flow.RunCompleted
			run.CompletedAt = time.Now()
			e.publish(notifier, run, flow.EventRunCompleted, state.ID, map[string]any{
				"transitions": run.Transitions,
			})
			return nil
		}

		e.publish(notifier, run, flow.EventStateStarted, state.ID, nil)

		outcome, actionErr := e.dispatcher.Dispatch(ctx, state, run.Context)
		if outcome != nil {
			for k, v := range outcome.Updates {
				run.Context[k] = v
			}
		}

		// Cancellation observed immediately after the dispatch returns.
		if ctx.Err() != nil && !errors.Is(actionErr, flow.ErrAborted) {
			return e.fail(notifier, run, flow.RunAborted,
				fmt.Errorf("%w: cancelled after state %q", flow.ErrAborted, state.ID))
		}

		if actionErr != nil {
			if errors.Is(actionErr, flow.ErrAborted) {
				return e.fail(notifier, run, flow.RunAborted, actionErr)
			}
			if errors.Is(actionErr, flow.ErrManualIntervention) {
				return e.fail(notifier, run, flow.RunFailed, actionErr)
			}
			// Error severity: recorded, then re-raised unless an explicitly
			// guarded transition catches it below.
			run.Context[state.ID+"_error"] = actionErr.Error()
		}

		summary := ""
		if outcome != nil {
			summary = outcome.Summary
		}
		e.publish(notifier, run, flow.EventStateCompleted, state.ID, map[string]any{
			"summary": summary,
			"error":   errString(actionErr),
		})

		next, err := e.selectTransition(run, state, actionErr != nil)
		if err != nil {
			if actionErr != nil && errors.Is(err, flow.ErrNoTransition) {
				// Nothing caught the action failure; the failure wins.
				status := flow.RunFailed
				if errors.Is(actionErr, context.DeadlineExceeded) {
					status = flow.RunTimedOut
				}
				return e.fail(notifier, run, status, actionErr)
			}
			return e.fail(notifier, run, flow.RunFailed, err)
		}

		if run.Transitions >= e.maxTransitions {
			return e.fail(notifier, run, flow.RunFailed,
				fmt.Errorf("%w: ceiling %d", flow.ErrTransitionLimit, e.maxTransitions))
		}
		run.Transitions++
		run.Current = next.To
	}
}

// selectTransition evaluates the outgoing transitions of state in
// declaration order and returns the first match. After a failed action
// only explicitly guarded transitions are considered: an unconditioned
// default must not silently swallow an error. A guard that fails to
// evaluate is fatal (validation-failed).
func (e *Executor) selectTransition(run *flow.Run, state *flow.State, afterError bool) (*flow.Transition, error) {
	for _, t := range run.Definition.Outgoing(state.ID) {
		if afterError && t.Condition == "" {
			continue
		}
		match, err := eval.Truthy(t.Condition, run.Context)
		if err != nil {
			return nil, fmt.Errorf("guard on %s -> %s: %w", t.From, t.To, err)
		}
		if match {
			t := t
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w out of state %q", flow.ErrNoTransition, state.ID)
}

// fail records a fatal outcome: status, marker, run.error event.
func (e *Executor) fail(notifier *Notifier, run *flow.Run, status flow.RunStatus, err error) error {
	run.Status = status
	run.StatusError = err.Error()
	run.CompletedAt = time.Now()
	e.marker.Write(run.Workflow, run.ID, err.Error())
	e.publish(notifier, run, flow.EventRunError, run.Current, map[string]any{
		"error":  err.Error(),
		"status": string(status),
	})
	return err
}

func (e *Executor) publish(n *Notifier, run *flow.Run, typ flow.EventType, state string, payload map[string]any) {
	n.Publish(flow.Event{
		Type:      typ,
		RunID:     run.ID,
		Workflow:  run.Workflow,
		State:     state,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
