package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/taehoon/flowkit/internal/action"
	"github.com/taehoon/flowkit/internal/adapter"
	"github.com/taehoon/flowkit/internal/config"
	"github.com/taehoon/flowkit/internal/engine"
	"github.com/taehoon/flowkit/internal/flow"
	"github.com/taehoon/flowkit/internal/history"
	"github.com/taehoon/flowkit/internal/mcp"
	"github.com/taehoon/flowkit/internal/model"
	"github.com/taehoon/flowkit/internal/resolver"
	"github.com/taehoon/flowkit/internal/scheduler"
)

const version = "0.3.0"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd(cfg, os.Args[2:])
	case "serve":
		serveCmd(cfg)
	case "version", "--version":
		fmt.Println("flowkit v" + version)
	case "help", "--help", "-h":
		usage()
	default:
		// The workflow name is the command: `flowkit fix-issue --param k=v`.
		runCmd(cfg, os.Args[1], os.Args[2:])
	}
}

func usage() {
	fmt.Println("flowkit v" + version)
	fmt.Println(`Usage:
  flowkit list [--format json|yaml|table] [--verbose]
  flowkit <workflow> [--param key=value]... [--format ...] [--dry-run] [--verbose]
  flowkit serve`)
}

// paramFlags collects repeatable --param key=value flags.
type paramFlags map[string]any

func (p paramFlags) String() string { return fmt.Sprintf("%v", map[string]any(p)) }

func (p paramFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	p[key] = val
	return nil
}

func buildAdapter(cfg *config.Config, verbose bool) (*adapter.Adapter, func()) {
	dispatcher := action.NewDispatcher(
		model.BuildAll(cfg.Providers),
		cfg.Engine.ShellTimeout.Std(),
		cfg.Engine.PromptTimeout.Std(),
	)
	executor := engine.New(dispatcher,
		&engine.Marker{Path: cfg.Engine.MarkerPath},
		cfg.Engine.MaxTransitions,
	)

	var repo history.Repository
	cleanup := func() {}
	if cfg.Database.URL != "" {
		pg, err := history.NewPostgresRepository(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("run history database unavailable, falling back to memory", "err", err)
			repo = history.NewMemoryRepository()
		} else {
			repo = pg
			cleanup = func() { pg.Close() }
		}
	} else {
		repo = history.NewMemoryRepository()
	}

	a := &adapter.Adapter{
		Resolver: resolver.New(cfg.Workflows.UserDir, cfg.Workflows.ProjectDir),
		Executor: executor,
		History:  repo,
	}
	if verbose {
		a.Listener = printEvent
	}
	return a, cleanup
}

func printEvent(e flow.Event) {
	switch e.Type {
	case flow.EventStateStarted:
		slog.Info("state started", "workflow", e.Workflow, "state", e.State)
	case flow.EventStateCompleted:
		slog.Info("state completed", "workflow", e.Workflow, "state", e.State,
			"summary", e.Payload["summary"])
	case flow.EventRunError:
		slog.Error("run error", "workflow", e.Workflow, "state", e.State,
			"error", e.Payload["error"])
	default:
		slog.Info(string(e.Type), "workflow", e.Workflow, "run", e.RunID)
	}
}

func listCmd(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	format := fs.String("format", "json", "output format: json, yaml, or table")
	verbose := fs.Bool("verbose", false, "include declared parameters")
	fs.Parse(args)

	a, cleanup := buildAdapter(cfg, false)
	defer cleanup()

	resp, err := a.Handle(context.Background(), adapter.Request{
		FlowName: adapter.DiscoveryName,
		Format:   adapter.Format(*format),
		Verbose:  *verbose,
	})
	if err != nil {
		slog.Error("listing workflows", "err", err)
		os.Exit(1)
	}
	fmt.Println(resp.Rendered)
}

func runCmd(cfg *config.Config, workflow string, args []string) {
	fs := flag.NewFlagSet(workflow, flag.ExitOnError)
	params := paramFlags{}
	fs.Var(params, "param", "workflow parameter as key=value (repeatable)")
	format := fs.String("format", "json", "output format: json, yaml, or table")
	dryRun := fs.Bool("dry-run", false, "validate without dispatching any action")
	verbose := fs.Bool("verbose", false, "stream lifecycle events to stderr")
	fs.Parse(args)

	a, cleanup := buildAdapter(cfg, *verbose)
	defer cleanup()

	// Cancellation is cooperative: Ctrl-C aborts between states.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := a.Handle(ctx, adapter.Request{
		FlowName:   workflow,
		Parameters: params,
		Format:     adapter.Format(*format),
		Verbose:    *verbose,
		DryRun:     *dryRun,
	})
	if err != nil {
		if errors.Is(err, adapter.ErrUnknownWorkflow) {
			slog.Error("unknown workflow", "name", workflow)
			fmt.Fprintln(os.Stderr, "run `flowkit list` to see available workflows")
		} else {
			slog.Error("workflow failed to start", "name", workflow, "err", err)
		}
		os.Exit(1)
	}

	fmt.Println(resp.Rendered)
	if resp.Status != "" && resp.Status != flow.RunCompleted && !resp.DryRun {
		os.Exit(1)
	}
}

func serveCmd(cfg *config.Config) {
	a, cleanup := buildAdapter(cfg, false)
	defer cleanup()

	sched := scheduler.New(a, cfg.Schedules)
	if err := sched.Start(); err != nil {
		slog.Error("starting scheduler", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	slog.Info("starting flowkit MCP server on stdio", "version", version)
	if err := mcp.NewServer(a, version).ServeStdio(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
