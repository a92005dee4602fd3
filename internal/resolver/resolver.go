// Package resolver discovers workflow definitions across three
// precedence tiers: bundled (compiled in), user-level, and
// project-level. Later tiers override earlier ones on name collision.
// The filesystem is ground truth: every call re-reads from scratch, so
// externally edited definitions are visible without a restart.
package resolver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/taehoon/flowkit/internal/diagram"
	"github.com/taehoon/flowkit/internal/flow"
	"github.com/taehoon/flowkit/internal/graph"
)

// Source identifies the tier a workflow was discovered in.
type Source string

const (
	SourceBundled Source = "bundled"
	SourceUser    Source = "user"
	SourceProject Source = "project"
)

// workflowExt is the file extension workflow definitions use.
const workflowExt = ".flow"

// Info is the discovery metadata for one workflow.
type Info struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []flow.ParameterSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Source      Source               `json:"source" yaml:"source"`
}

// Resolver discovers workflows. UserDir and ProjectDir may be empty to
// disable a tier; the bundled tier is always present.
type Resolver struct {
	UserDir    string
	ProjectDir string
}

// New creates a Resolver over the given user and project directories.
func New(userDir, projectDir string) *Resolver {
	return &Resolver{UserDir: userDir, ProjectDir: projectDir}
}

// entry is one discovered file before parsing. Entries are ordered by
// ascending tier precedence.
type entry struct {
	basename string
	source   Source
	read     func() ([]byte, error)
}

// List returns discovery metadata for every resolvable workflow, sorted
// by name. Files that fail to parse or validate are skipped with a
// warning so one broken project file cannot hide the rest.
func (r *Resolver) List(ctx context.Context) ([]Info, error) {
	entries, err := r.discover(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Info)
	for _, e := range entries {
		def, err := load(e)
		if err != nil {
			slog.Warn("skipping unreadable workflow", "file", e.basename, "source", e.source, "err", err)
			continue
		}
		// Later tiers override earlier ones on name collision.
		byName[def.Name] = Info{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
			Source:      e.source,
		}
	}

	infos := make([]Info, 0, len(byName))
	for _, info := range byName {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Get resolves one workflow by name, or flow.ErrNotFound. A broken file
// whose basename matches the requested name surfaces its parse or
// validation error rather than hiding as not-found.
func (r *Resolver) Get(ctx context.Context, name string) (*flow.WorkflowDefinition, error) {
	entries, err := r.discover(ctx)
	if err != nil {
		return nil, err
	}

	var found *flow.WorkflowDefinition
	var loadErr error
	for _, e := range entries {
		def, err := load(e)
		if err != nil {
			if e.basename == name {
				loadErr = err
			}
			continue
		}
		if def.Name == name {
			// Highest tier wins; entries are in ascending precedence.
			found = def
		}
	}
	if found != nil {
		return found, nil
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return nil, fmt.Errorf("%w: %q", flow.ErrNotFound, name)
}

// discover collects candidate files in ascending tier precedence:
// bundled, then user, then project.
func (r *Resolver) discover(ctx context.Context) ([]entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []entry

	bundledEntries, err := fs.ReadDir(bundled, bundledDir)
	if err != nil {
		return nil, fmt.Errorf("reading bundled workflows: %w", err)
	}
	for _, de := range bundledEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), workflowExt) {
			continue
		}
		path := bundledDir + "/" + de.Name()
		entries = append(entries, entry{
			basename: workflowName(de.Name()),
			source:   SourceBundled,
			read:     func() ([]byte, error) { return fs.ReadFile(bundled, path) },
		})
	}

	for _, tier := range []struct {
		dir    string
		source Source
	}{
		{r.UserDir, SourceUser},
		{r.ProjectDir, SourceProject},
	} {
		if tier.dir == "" {
			continue
		}
		dirEntries, err := os.ReadDir(tier.dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s workflows: %w", tier.source, err)
		}
		for _, de := range dirEntries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), workflowExt) {
				continue
			}
			path := filepath.Join(tier.dir, de.Name())
			entries = append(entries, entry{
				basename: workflowName(de.Name()),
				source:   tier.source,
				read:     func() ([]byte, error) { return os.ReadFile(path) },
			})
		}
	}
	return entries, nil
}

// load reads, parses, and validates one entry. The file basename is the
// fallback workflow name when the frontmatter declares none.
func load(e entry) (*flow.WorkflowDefinition, error) {
	data, err := e.read()
	if err != nil {
		return nil, fmt.Errorf("reading workflow %q: %w", e.basename, err)
	}
	g, err := diagram.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing workflow %q: %w", e.basename, err)
	}
	return graph.Build(g, e.basename)
}

func workflowName(filename string) string {
	return strings.TrimSuffix(filename, workflowExt)
}
