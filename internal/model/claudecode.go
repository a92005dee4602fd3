package model

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/taehoon/flowkit/internal/config"
)

// Compile-time interface compliance check.
var _ Backend = (*ClaudeCodeBackend)(nil)

const defaultClaudeBinary = "claude"

// ClaudeCodeBackend executes prompts by shelling out to the Claude Code
// CLI (`claude -p`). This allows using a Claude Code subscription
// without an API key.
type ClaudeCodeBackend struct {
	binaryPath string
}

// NewClaudeCodeBackend creates a ClaudeCodeBackend. It locates the
// claude binary on PATH or uses the provided path. If "claude" is not
// on PATH, it checks common installation locations.
func NewClaudeCodeBackend(binaryPath ...string) *ClaudeCodeBackend {
	bin := defaultClaudeBinary
	if len(binaryPath) > 0 && binaryPath[0] != "" {
		bin = binaryPath[0]
	}
	if bin == defaultClaudeBinary {
		if _, err := exec.LookPath(bin); err != nil {
			home, _ := os.UserHomeDir()
			for _, candidate := range []string{
				home + "/.local/bin/claude",
				"/usr/local/bin/claude",
			} {
				if _, err := os.Stat(candidate); err == nil {
					bin = candidate
					break
				}
			}
		}
	}
	return &ClaudeCodeBackend{binaryPath: bin}
}

// Name returns "claude-code".
func (c *ClaudeCodeBackend) Name() string { return "claude-code" }

// Complete runs `claude -p` with the prompt on stdin and returns the
// text response. The caller's ctx carries the action timeout.
func (c *ClaudeCodeBackend) Complete(ctx context.Context, req PromptRequest) (string, error) {
	args := []string{"-p"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	// Disable built-in tools for pure text completion.
	args = append(args, "--tools", "", "--output-format", "text")

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)

	// Remove CLAUDECODE env var to avoid nested session detection.
	cmd.Env = filterEnv(os.Environ(), "CLAUDECODE")
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", fmt.Errorf("claude-code: %s", errMsg)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("claude-code: empty response")
	}
	return text, nil
}

func init() {
	RegisterBackend("claude-code", func(name string, cfg config.ProviderConfig) Backend {
		return NewClaudeCodeBackend(cfg.Binary)
	})
}

// filterEnv returns a copy of env with any variables matching the given key removed.
func filterEnv(env []string, key string) []string {
	prefix := key + "="
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
