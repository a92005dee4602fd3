package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taehoon/flowkit/internal/eval"
	"github.com/taehoon/flowkit/internal/flow"
	"github.com/taehoon/flowkit/internal/model"
)

const (
	defaultShellTimeout  = 2 * time.Minute
	defaultPromptTimeout = 5 * time.Minute
)

// Dispatcher executes ActionSpecs. A zero DefaultBackend falls back to
// the first configured backend for prompt actions without a model tag.
type Dispatcher struct {
	Backends       map[string]model.Backend
	DefaultBackend string
	ShellTimeout   time.Duration
	PromptTimeout  time.Duration
}

// NewDispatcher creates a Dispatcher with the given backends and
// default per-kind timeouts. Zero timeouts select the package defaults.
func NewDispatcher(backends map[string]model.Backend, shellTimeout, promptTimeout time.Duration) *Dispatcher {
	if shellTimeout <= 0 {
		shellTimeout = defaultShellTimeout
	}
	if promptTimeout <= 0 {
		promptTimeout = defaultPromptTimeout
	}
	return &Dispatcher{
		Backends:      backends,
		ShellTimeout:  shellTimeout,
		PromptTimeout: promptTimeout,
	}
}

// Dispatch executes the action of state against runCtx. The returned
// Outcome is merged into the run context by the caller even when an
// error is returned alongside it (captured output of a failed command
// is still context). A state without an action is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, state *flow.State, runCtx map[string]any) (*Outcome, error) {
	spec := state.Action
	if spec == nil {
		return emptyOutcome(), nil
	}

	switch spec.Kind {
	case flow.ActionShell:
		return d.dispatchShell(ctx, state, spec, runCtx)
	case flow.ActionPrompt:
		return d.dispatchPrompt(ctx, state, spec, runCtx)
	case flow.ActionSet:
		return d.dispatchSet(state, spec, runCtx)
	case flow.ActionWait:
		return d.dispatchWait(ctx, state, spec)
	case flow.ActionAbort:
		reason := eval.Render(spec.Reason, runCtx)
		return emptyOutcome(), fmt.Errorf("%w: %s", flow.ErrAborted, reason)
	default:
		return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind, Err: fmt.Errorf("unknown action kind")}
	}
}

func (d *Dispatcher) dispatchPrompt(ctx context.Context, state *flow.State, spec *flow.ActionSpec, runCtx map[string]any) (*Outcome, error) {
	backend, modelName, err := d.resolveBackend(spec.Model)
	if err != nil {
		return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind, Err: err}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = d.PromptTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := eval.Render(spec.Template, runCtx)
	text, err := backend.Complete(callCtx, model.PromptRequest{Model: modelName, Prompt: prompt})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind, Err: err}
	}

	into := spec.Into
	if into == "" {
		into = state.ID + "_result"
	}
	text = model.NormalizeText(text)
	return &Outcome{
		Updates: map[string]any{into: text},
		Summary: fmt.Sprintf("prompt via %s: %d chars into %s", backend.Name(), len(text), into),
	}, nil
}

func (d *Dispatcher) dispatchSet(state *flow.State, spec *flow.ActionSpec, runCtx map[string]any) (*Outcome, error) {
	// Synchronous and pure: no timeout applies.
	val, err := eval.Value(spec.Expression, runCtx)
	if err != nil {
		return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind, Err: fmt.Errorf("%w: %v", ErrVariable, err)}
	}
	return &Outcome{
		Updates: map[string]any{spec.Name: val},
		Summary: fmt.Sprintf("set %s = %v", spec.Name, val),
	}, nil
}

func (d *Dispatcher) dispatchWait(ctx context.Context, state *flow.State, spec *flow.ActionSpec) (*Outcome, error) {
	// Suspends only this run; other runs keep going.
	timer := time.NewTimer(spec.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return &Outcome{
			Updates: map[string]any{},
			Summary: fmt.Sprintf("waited %s", spec.Duration),
		}, nil
	case <-ctx.Done():
		return emptyOutcome(), fmt.Errorf("%w: cancelled during wait in state %q", flow.ErrAborted, state.ID)
	}
}

// resolveBackend picks a backend from a "provider/model" tag. An empty
// tag selects DefaultBackend, or the sole configured backend.
func (d *Dispatcher) resolveBackend(tag string) (model.Backend, string, error) {
	if len(d.Backends) == 0 {
		return nil, "", fmt.Errorf("no prompt backends configured")
	}

	provider, modelName := tag, ""
	if idx := strings.Index(tag, "/"); idx >= 0 {
		provider, modelName = tag[:idx], tag[idx+1:]
	}
	if provider == "" {
		provider = d.DefaultBackend
	}
	if provider == "" && len(d.Backends) == 1 {
		for name := range d.Backends {
			provider = name
		}
	}

	backend, ok := d.Backends[provider]
	if !ok {
		return nil, "", fmt.Errorf("no prompt backend named %q", provider)
	}
	return backend, modelName, nil
}
