package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.Engine.MaxTransitions != 1000 {
		t.Fatalf("MaxTransitions = %d", cfg.Engine.MaxTransitions)
	}
	if cfg.Engine.ShellTimeout.Std() != 2*time.Minute || cfg.Engine.PromptTimeout.Std() != 5*time.Minute {
		t.Fatalf("timeouts = %v / %v", cfg.Engine.ShellTimeout, cfg.Engine.PromptTimeout)
	}
	if cfg.Engine.MarkerPath != filepath.Join(".flowkit", "FAILED") {
		t.Fatalf("MarkerPath = %q", cfg.Engine.MarkerPath)
	}
	if cfg.Workflows.ProjectDir != filepath.Join(".flowkit", "workflows") {
		t.Fatalf("ProjectDir = %q", cfg.Workflows.ProjectDir)
	}
	if cfg.Providers == nil {
		t.Fatal("Providers map is nil")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowkit.yaml")
	content := `
engine:
  max_transitions: 50
  shell_timeout: 30s
workflows:
  project_dir: custom/workflows
providers:
  gemini:
    type: gemini
    api_key: test-key
database:
  url: postgres://localhost/flowkit
schedules:
  - workflow: triage
    cron: "0 9 * * *"
    timezone: America/New_York
    params:
      test_command: make test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxTransitions != 50 {
		t.Fatalf("MaxTransitions = %d", cfg.Engine.MaxTransitions)
	}
	if cfg.Engine.ShellTimeout.Std() != 30*time.Second {
		t.Fatalf("ShellTimeout = %v", cfg.Engine.ShellTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Engine.PromptTimeout.Std() != 5*time.Minute {
		t.Fatalf("PromptTimeout = %v", cfg.Engine.PromptTimeout)
	}
	if cfg.Workflows.ProjectDir != "custom/workflows" {
		t.Fatalf("ProjectDir = %q", cfg.Workflows.ProjectDir)
	}
	if cfg.Providers["gemini"].APIKey != "test-key" {
		t.Fatalf("provider not parsed: %+v", cfg.Providers)
	}
	if cfg.Database.URL != "postgres://localhost/flowkit" {
		t.Fatalf("Database.URL = %q", cfg.Database.URL)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Workflow != "triage" {
		t.Fatalf("schedules not parsed: %+v", cfg.Schedules)
	}
	if cfg.Schedules[0].Params["test_command"] != "make test" {
		t.Fatalf("schedule params not parsed: %+v", cfg.Schedules[0].Params)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowkit.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  shell_timeout: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadRejectsNonPositiveCeiling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowkit.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  max_transitions: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxTransitions != 1000 {
		t.Fatalf("zero ceiling should fall back to default, got %d", cfg.Engine.MaxTransitions)
	}
}
