package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taehoon/flowkit/internal/action"
	"github.com/taehoon/flowkit/internal/flow"
)

// fakeDispatcher records dispatch order and delegates to fn when set.
type fakeDispatcher struct {
	fn    func(ctx context.Context, state *flow.State, runCtx map[string]any) (*action.Outcome, error)
	calls []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, state *flow.State, runCtx map[string]any) (*action.Outcome, error) {
	f.calls = append(f.calls, state.ID)
	if f.fn != nil {
		return f.fn(ctx, state, runCtx)
	}
	return &action.Outcome{Updates: map[string]any{}}, nil
}

func buildDef(t *testing.T, states []*flow.State, transitions []flow.Transition, params ...flow.ParameterSpec) *flow.WorkflowDefinition {
	t.Helper()
	byID := make(map[string]*flow.State, len(states))
	initial := ""
	for _, s := range states {
		byID[s.ID] = s
		if s.Initial {
			initial = s.ID
		}
	}
	require.NotEmpty(t, initial, "test definition needs an initial state")
	return flow.NewDefinition("test", "", byID, transitions, params, initial)
}

// drive runs Execute with a fresh notifier and returns the full event
// stream alongside the Execute error.
func drive(ctx context.Context, exec *Executor, run *flow.Run) ([]flow.Event, error) {
	n := NewNotifier()
	collected := make(chan []flow.Event, 1)
	go func() {
		var evs []flow.Event
		for e := range n.Events() {
			evs = append(evs, e)
		}
		collected <- evs
	}()
	err := exec.Execute(ctx, run, n)
	return <-collected, err
}

func TestExecuteTerminalOnly(t *testing.T) {
	d := &fakeDispatcher{}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{{ID: "done", Initial: true, Terminal: true}},
		nil)

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	events, err := drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, flow.RunCompleted, run.Status)
	require.Zero(t, run.Transitions)
	// A terminal state's entry never dispatches an action.
	require.Empty(t, d.calls)
	require.Equal(t, flow.EventRunStarted, events[0].Type)
	require.Equal(t, flow.EventRunCompleted, events[len(events)-1].Type)
}

func TestExecuteLinearRun(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, state *flow.State, _ map[string]any) (*action.Outcome, error) {
		return &action.Outcome{Updates: map[string]any{state.ID + "_done": true}}, nil
	}}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "a", Initial: true},
			{ID: "b"},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{
			{From: "a", To: "b"},
			{From: "b", To: "end"},
		})

	run, err := exec.Start(def, map[string]any{"x": 1})
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, flow.RunCompleted, run.Status)
	require.Equal(t, 2, run.Transitions)
	require.Equal(t, []string{"a", "b"}, d.calls)
	require.Equal(t, 1, run.Context["x"])
	require.Equal(t, true, run.Context["a_done"])
	require.Equal(t, true, run.Context["b_done"])

	var visited []string
	for _, v := range run.History {
		visited = append(visited, v.State)
	}
	require.Equal(t, []string{"a", "b", "end"}, visited)
}

func TestExecuteGuardedBranch(t *testing.T) {
	d := &fakeDispatcher{}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "check", Initial: true},
			{ID: "high", Terminal: true},
			{ID: "low", Terminal: true},
		},
		[]flow.Transition{
			{From: "check", To: "high", Condition: "score > 10"},
			{From: "check", To: "low"},
		})

	run, err := exec.Start(def, map[string]any{"score": 42})
	require.NoError(t, err)
	_, err = drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, "high", run.Current)

	run, err = exec.Start(def, map[string]any{"score": 3})
	require.NoError(t, err)
	_, err = drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, "low", run.Current)
}

func TestExecuteTransitionCeiling(t *testing.T) {
	const ceiling = 5
	d := &fakeDispatcher{}
	exec := New(d, nil, ceiling)
	def := buildDef(t,
		[]*flow.State{
			{ID: "spin", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "spin", To: "spin"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.ErrorIs(t, err, flow.ErrTransitionLimit)
	require.Equal(t, flow.RunFailed, run.Status)
	// Exactly ceiling transitions happen before the ceiling trips, so
	// the loop state is entered ceiling+1 times.
	require.Equal(t, ceiling, run.Transitions)
	require.Len(t, run.History, ceiling+1)
}

func TestStartMissingRequiredParameter(t *testing.T) {
	exec := New(&fakeDispatcher{}, nil, 0)
	def := buildDef(t,
		[]*flow.State{{ID: "done", Initial: true, Terminal: true}},
		nil,
		flow.ParameterSpec{Name: "issue", Required: true},
		flow.ParameterSpec{Name: "plan_filename", Required: true},
	)

	_, err := exec.Start(def, map[string]any{"issue": "bug-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "plan_filename")
}

func TestStartAppliesDefaults(t *testing.T) {
	exec := New(&fakeDispatcher{}, nil, 0)
	def := buildDef(t,
		[]*flow.State{{ID: "done", Initial: true, Terminal: true}},
		nil,
		flow.ParameterSpec{Name: "max_attempts", Default: 3},
		flow.ParameterSpec{Name: "mode", Default: "safe"},
	)

	run, err := exec.Start(def, map[string]any{"mode": "fast", "extra": true})
	require.NoError(t, err)
	require.Equal(t, 3, run.Context["max_attempts"])
	require.Equal(t, "fast", run.Context["mode"])
	require.Equal(t, true, run.Context["extra"])
}

func TestStartCoercesDeclaredTypes(t *testing.T) {
	exec := New(&fakeDispatcher{}, nil, 0)
	def := buildDef(t,
		[]*flow.State{{ID: "done", Initial: true, Terminal: true}},
		nil,
		flow.ParameterSpec{Name: "max_attempts", Type: "number", Default: 3},
		flow.ParameterSpec{Name: "dry", Type: "boolean", Default: false},
		flow.ParameterSpec{Name: "label", Type: "string"},
	)

	run, err := exec.Start(def, map[string]any{
		"max_attempts": "5",
		"dry":          "true",
		"label":        42,
	})
	require.NoError(t, err)
	require.Equal(t, 5, run.Context["max_attempts"])
	require.Equal(t, true, run.Context["dry"])
	require.Equal(t, "42", run.Context["label"])

	run, err = exec.Start(def, map[string]any{"max_attempts": "2.5"})
	require.NoError(t, err)
	require.Equal(t, 2.5, run.Context["max_attempts"])

	_, err = exec.Start(def, map[string]any{"max_attempts": "several"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_attempts")

	_, err = exec.Start(def, map[string]any{"dry": "perhaps"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dry")
}

func TestExecuteGuardSeesCoercedNumber(t *testing.T) {
	d := &fakeDispatcher{}
	exec := New(d, nil, 0)
	// Numeric guard against a parameter a CLI caller supplies as text.
	def := buildDef(t,
		[]*flow.State{
			{ID: "bump", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{
			{From: "bump", To: "end", Condition: "attempts < max_attempts"},
			{From: "bump", To: "end"},
		},
		flow.ParameterSpec{Name: "max_attempts", Type: "number", Default: 3},
		flow.ParameterSpec{Name: "attempts", Type: "number", Default: 0},
	)

	run, err := exec.Start(def, map[string]any{"max_attempts": "5"})
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, flow.RunCompleted, run.Status)
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &fakeDispatcher{fn: func(_ context.Context, state *flow.State, _ map[string]any) (*action.Outcome, error) {
		if state.ID == "b" {
			// Cancellation arrives while b's action runs; the action itself
			// completes and its updates must be preserved.
			cancel()
		}
		return &action.Outcome{Updates: map[string]any{state.ID + "_done": true}}, nil
	}}

	dir := t.TempDir()
	marker := &Marker{Path: filepath.Join(dir, "FAILED")}
	exec := New(d, marker, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "a", Initial: true},
			{ID: "b"},
			{ID: "c"},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "c", To: "end"},
		})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	events, err := drive(ctx, exec, run)
	require.ErrorIs(t, err, flow.ErrAborted)
	require.Equal(t, flow.RunAborted, run.Status)
	// Completed actions are kept; c never ran.
	require.Equal(t, true, run.Context["a_done"])
	require.Equal(t, true, run.Context["b_done"])
	require.NotContains(t, run.Context, "c_done")
	require.Equal(t, []string{"a", "b"}, d.calls)
	require.Equal(t, flow.EventRunError, events[len(events)-1].Type)

	content, readErr := os.ReadFile(marker.Path)
	require.NoError(t, readErr)
	require.Contains(t, string(content), "workflow: test")
	require.Contains(t, string(content), run.ID)
}

func TestExecuteActionErrorCaughtByGuard(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, state *flow.State, _ map[string]any) (*action.Outcome, error) {
		if state.ID == "try" {
			return &action.Outcome{Updates: map[string]any{}}, fmt.Errorf("command failed")
		}
		return &action.Outcome{Updates: map[string]any{}}, nil
	}}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "try", Initial: true},
			{ID: "recover"},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{
			{From: "try", To: "end"},
			{From: "try", To: "recover", Condition: `try_error != ""`},
			{From: "recover", To: "end"},
		})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.NoError(t, err)
	require.Equal(t, flow.RunCompleted, run.Status)
	// The unconditioned try -> end edge must not swallow the failure;
	// only the guarded recovery edge may.
	require.Equal(t, []string{"try", "recover"}, d.calls)
	require.Contains(t, run.Context["try_error"], "command failed")
}

func TestExecuteActionErrorUncaughtFails(t *testing.T) {
	actionErr := fmt.Errorf("command failed")
	d := &fakeDispatcher{fn: func(_ context.Context, _ *flow.State, _ map[string]any) (*action.Outcome, error) {
		return &action.Outcome{Updates: map[string]any{}}, actionErr
	}}

	dir := t.TempDir()
	marker := &Marker{Path: filepath.Join(dir, "FAILED")}
	exec := New(d, marker, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "try", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "try", To: "end"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.ErrorIs(t, err, actionErr)
	require.Equal(t, flow.RunFailed, run.Status)

	_, statErr := os.Stat(marker.Path)
	require.NoError(t, statErr, "failure marker must exist")
}

func TestExecuteActionErrorDeadlineBecomesTimedOut(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, _ *flow.State, _ map[string]any) (*action.Outcome, error) {
		return &action.Outcome{Updates: map[string]any{}},
			fmt.Errorf("timed out: %w", context.DeadlineExceeded)
	}}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "slow", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "slow", To: "end"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.Error(t, err)
	require.Equal(t, flow.RunTimedOut, run.Status)
}

func TestExecuteAbortAction(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, _ *flow.State, _ map[string]any) (*action.Outcome, error) {
		return &action.Outcome{Updates: map[string]any{}},
			fmt.Errorf("%w: nothing left to try", flow.ErrAborted)
	}}
	exec := New(d, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "give_up", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "give_up", To: "end"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.ErrorIs(t, err, flow.ErrAborted)
	require.Equal(t, flow.RunAborted, run.Status)
	require.Contains(t, run.StatusError, "nothing left to try")
}

func TestExecuteDanglingTarget(t *testing.T) {
	// Built by hand to bypass graph validation.
	def := flow.NewDefinition("broken", "",
		map[string]*flow.State{"a": {ID: "a", Initial: true}},
		[]flow.Transition{{From: "a", To: "missing"}},
		nil, "a")

	exec := New(&fakeDispatcher{}, nil, 0)
	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.ErrorIs(t, err, flow.ErrStateNotFound)
	require.Equal(t, flow.RunFailed, run.Status)
}

func TestExecuteGuardEvaluationFailureIsFatal(t *testing.T) {
	exec := New(&fakeDispatcher{}, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "check", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "check", To: "end", Condition: "no_such_var > 1"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	_, err = drive(context.Background(), exec, run)
	require.Error(t, err)
	require.Contains(t, err.Error(), "guard on check -> end")
	require.Equal(t, flow.RunFailed, run.Status)
}

func TestExecuteEventOrdering(t *testing.T) {
	exec := New(&fakeDispatcher{}, nil, 0)
	def := buildDef(t,
		[]*flow.State{
			{ID: "a", Initial: true},
			{ID: "end", Terminal: true},
		},
		[]flow.Transition{{From: "a", To: "end"}})

	run, err := exec.Start(def, nil)
	require.NoError(t, err)

	events, err := drive(context.Background(), exec, run)
	require.NoError(t, err)

	var types []flow.EventType
	for _, e := range events {
		types = append(types, e.Type)
		require.Equal(t, run.ID, e.RunID)
	}
	require.Equal(t, []flow.EventType{
		flow.EventRunStarted,
		flow.EventStateStarted,
		flow.EventStateCompleted,
		flow.EventRunCompleted,
	}, types)
}
