package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m" as well as bare nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value on line %d", node.Line)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the top-level application configuration.
type Config struct {
	Engine    EngineConfig              `yaml:"engine"`
	Workflows WorkflowsConfig           `yaml:"workflows"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Database  DatabaseConfig            `yaml:"database"`
	Schedules []ScheduleConfig          `yaml:"schedules"`
}

// EngineConfig holds interpreter settings.
type EngineConfig struct {
	MaxTransitions int      `yaml:"max_transitions"` // transition ceiling per run (default: 1000)
	ShellTimeout   Duration `yaml:"shell_timeout"`   // default per shell action (default: 2m)
	PromptTimeout  Duration `yaml:"prompt_timeout"`  // default per prompt action (default: 5m)
	MarkerPath     string   `yaml:"marker_path"`     // failure marker file (default: .flowkit/FAILED)
}

// WorkflowsConfig holds the discovery directories for the user and
// project tiers. The bundled tier is compiled in.
type WorkflowsConfig struct {
	UserDir    string `yaml:"user_dir"`    // default: ~/.config/flowkit/workflows
	ProjectDir string `yaml:"project_dir"` // default: .flowkit/workflows
}

// ProviderConfig holds prompt-backend settings.
type ProviderConfig struct {
	Type   string `yaml:"type"`    // e.g. "claude-code", "gemini"
	APIKey string `yaml:"api_key"` // API key, if the backend needs one
	Binary string `yaml:"binary"`  // CLI binary path, for subprocess backends
}

// DatabaseConfig holds run-history database settings. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ScheduleConfig declares one cron-driven workflow run.
type ScheduleConfig struct {
	Workflow string         `yaml:"workflow"`
	Cron     string         `yaml:"cron"`
	Timezone string         `yaml:"timezone"`
	Params   map[string]any `yaml:"params"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	userDir := ".config/flowkit/workflows"
	if home, err := os.UserHomeDir(); err == nil {
		userDir = filepath.Join(home, ".config", "flowkit", "workflows")
	}
	return &Config{
		Engine: EngineConfig{
			MaxTransitions: 1000,
			ShellTimeout:   Duration(2 * time.Minute),
			PromptTimeout:  Duration(5 * time.Minute),
			MarkerPath:     filepath.Join(".flowkit", "FAILED"),
		},
		Workflows: WorkflowsConfig{
			UserDir:    userDir,
			ProjectDir: filepath.Join(".flowkit", "workflows"),
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Ensure Providers map is never nil even if YAML has "providers: {}" or omits it.
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Engine.MaxTransitions <= 0 {
		cfg.Engine.MaxTransitions = 1000
	}

	return cfg, nil
}

// LoadDefault tries to load "flowkit.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("flowkit.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
