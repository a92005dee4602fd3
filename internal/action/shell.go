package action

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/taehoon/flowkit/internal/eval"
	"github.com/taehoon/flowkit/internal/flow"
)

// maxOutputSize caps captured stdout/stderr stored in the run context.
const maxOutputSize = 100 * 1024 // 100 KB

// exitManualIntervention is the exit code a command uses to signal that
// the run needs a human before it can continue (EX_TEMPFAIL).
const exitManualIntervention = 75

// dispatchShell templates the command against the run context, runs it
// through `sh -c` under the action timeout, and captures output and
// exit status. A timeout kills the subprocess. The captured output is
// returned in the Outcome even when the command failed.
func (d *Dispatcher) dispatchShell(ctx context.Context, state *flow.State, spec *flow.ActionSpec, runCtx map[string]any) (*Outcome, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = d.ShellTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := eval.Render(spec.Command, runCtx)
	cmd := exec.CommandContext(execCtx, "sh", "-c", command)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind,
				Err: fmt.Errorf("command timed out after %s: %w", timeout, context.DeadlineExceeded)}
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return emptyOutcome(), &Error{State: state.ID, Kind: spec.Kind,
				Err: fmt.Errorf("starting command: %w", runErr)}
		}
	}

	outcome := &Outcome{
		Updates: map[string]any{
			state.ID + "_output":    capOutput(stdout.String()),
			state.ID + "_exit_code": exitCode,
		},
		Summary: fmt.Sprintf("shell exited %d (%s)", exitCode, shorten(command)),
	}

	switch {
	case exitCode == exitManualIntervention:
		return outcome, fmt.Errorf("%w: command %q exited %d", flow.ErrManualIntervention, shorten(command), exitCode)
	case exitCode != 0:
		return outcome, &Error{State: state.ID, Kind: spec.Kind,
			Err: fmt.Errorf("command exited %d: %s", exitCode, capOutput(stderr.String()))}
	}
	return outcome, nil
}

func capOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputSize {
		return s[:maxOutputSize] + "\n... [truncated at 100KB]"
	}
	return s
}

func shorten(command string) string {
	if len(command) > 80 {
		return command[:77] + "..."
	}
	return command
}
