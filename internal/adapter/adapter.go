// Package adapter is the externally-facing entry point of the engine.
// It composes the resolver and the executor behind the single `flow`
// operation consumed by the CLI and the tool-calling surface.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/taehoon/flowkit/internal/engine"
	"github.com/taehoon/flowkit/internal/flow"
	"github.com/taehoon/flowkit/internal/history"
	"github.com/taehoon/flowkit/internal/resolver"
)

// DiscoveryName is the reserved flow name that lists workflows instead
// of executing one.
const DiscoveryName = "list"

// Format selects how a response is rendered.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ErrUnknownWorkflow is the user-facing condition for a flow name no
// tier resolves. It is distinct from internal executor errors.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Request is the `flow` operation input.
type Request struct {
	FlowName   string         `json:"flow_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Format     Format         `json:"format,omitempty"`
	Verbose    bool           `json:"verbose,omitempty"`
	DryRun     bool           `json:"dry_run,omitempty"`
}

// PlannedState describes one state a dry run would visit.
type PlannedState struct {
	State  string `json:"state" yaml:"state"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Response is the `flow` operation output: either a discovery listing
// or an execution summary. Rendered holds the Format-specific text.
type Response struct {
	Listing []resolver.Info `json:"listing,omitempty" yaml:"listing,omitempty"`

	Workflow    string         `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Status      flow.RunStatus `json:"status,omitempty" yaml:"status,omitempty"`
	FinalState  string         `json:"final_state,omitempty" yaml:"final_state,omitempty"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Transitions int            `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`

	DryRun bool           `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Plan   []PlannedState `json:"plan,omitempty" yaml:"plan,omitempty"`

	Rendered string `json:"-" yaml:"-"`
}

// Adapter wires the resolver and executor together. Listener, when
// set, receives every lifecycle event of runs the adapter drives, in
// generation order. History, when set, records finished runs.
type Adapter struct {
	Resolver *resolver.Resolver
	Executor *engine.Executor
	History  history.Repository
	Listener func(flow.Event)
}

// Handle serves one flow request. The reserved discovery name never
// starts a run: no marker is written, no action dispatched.
func (a *Adapter) Handle(ctx context.Context, req Request) (*Response, error) {
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	if err := validFormat(format); err != nil {
		return nil, err
	}

	if req.FlowName == "" {
		return nil, fmt.Errorf("flow_name is required")
	}
	if req.FlowName == DiscoveryName {
		return a.discover(ctx, format, req.Verbose)
	}

	def, err := a.Resolver.Get(ctx, req.FlowName)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, req.FlowName)
		}
		return nil, err
	}

	run, err := a.Executor.Start(def, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("starting %q: %w", def.Name, err)
	}

	if req.DryRun {
		return a.dryRun(def, run, format)
	}
	return a.execute(ctx, run, format)
}

func (a *Adapter) discover(ctx context.Context, format Format, verbose bool) (*Response, error) {
	infos, err := a.Resolver.List(ctx)
	if err != nil {
		return nil, err
	}
	if !verbose {
		for i := range infos {
			infos[i].Parameters = nil
		}
	}
	resp := &Response{Listing: infos}
	return finish(resp, format)
}

// dryRun validates the workflow and parameters without dispatching any
// action, and reports what would run.
func (a *Adapter) dryRun(def *flow.WorkflowDefinition, run *flow.Run, format Format) (*Response, error) {
	plan := make([]PlannedState, 0, len(def.States))
	for _, t := range append([]flow.Transition{{To: def.Initial()}}, def.Transitions...) {
		s := def.States[t.To]
		if s == nil {
			continue
		}
		if containsState(plan, s.ID) {
			continue
		}
		planned := PlannedState{State: s.ID}
		if s.Terminal {
			planned.Detail = "terminal"
		}
		if s.Action != nil {
			planned.Action = string(s.Action.Kind)
			planned.Detail = actionDetail(s.Action)
		}
		plan = append(plan, planned)
	}

	resp := &Response{
		Workflow:   def.Name,
		DryRun:     true,
		Plan:       plan,
		Context:    run.ContextSnapshot(),
		FinalState: run.Current,
	}
	return finish(resp, format)
}

func (a *Adapter) execute(ctx context.Context, run *flow.Run, format Format) (*Response, error) {
	notifier := engine.NewNotifier()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Executor.Execute(ctx, run, notifier)
	})
	g.Go(func() error {
		for e := range notifier.Events() {
			if a.Listener != nil {
				a.Listener(e)
			}
		}
		return nil
	})

	runErr := g.Wait()

	if a.History != nil {
		if err := a.History.Create(context.WithoutCancel(ctx), history.FromRun(run)); err != nil {
			slog.Warn("recording run history", "run", run.ID, "err", err)
		}
	}

	resp := &Response{
		Workflow:    run.Workflow,
		Status:      run.Status,
		FinalState:  run.Current,
		Context:     run.ContextSnapshot(),
		Transitions: run.Transitions,
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	return finish(resp, format)
}

func containsState(plan []PlannedState, id string) bool {
	for _, p := range plan {
		if p.State == id {
			return true
		}
	}
	return false
}

func actionDetail(spec *flow.ActionSpec) string {
	switch spec.Kind {
	case flow.ActionShell:
		return spec.Command
	case flow.ActionPrompt:
		return spec.Template
	case flow.ActionSet:
		return fmt.Sprintf("%s = %s", spec.Name, spec.Expression)
	case flow.ActionWait:
		return spec.Duration.String()
	case flow.ActionAbort:
		return spec.Reason
	}
	return ""
}

func finish(resp *Response, format Format) (*Response, error) {
	rendered, err := render(resp, format)
	if err != nil {
		return nil, err
	}
	resp.Rendered = rendered
	return resp, nil
}
