// Package graph validates a parsed diagram and produces an immutable
// flow.WorkflowDefinition. Validation is structural only: reachability
// and unique initial/terminal states are enforced. Cycles are logged
// but never rejected; the executor's transition ceiling bounds them at
// runtime.
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/taehoon/flowkit/internal/diagram"
	"github.com/taehoon/flowkit/internal/flow"
)

// Build validates g and returns the definition. The fallback name is
// used when the frontmatter does not declare one.
func Build(g *diagram.Graph, fallbackName string) (*flow.WorkflowDefinition, error) {
	name := g.Meta.Name
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		return nil, fmt.Errorf("workflow has no name")
	}

	states := make(map[string]*flow.State, len(g.Nodes))
	var initial string
	var initialCount, terminalCount int

	for _, n := range g.Nodes {
		states[n.ID] = &flow.State{
			ID:          n.ID,
			Description: n.Description,
			Initial:     n.Initial,
			Terminal:    n.Terminal,
			Action:      n.Action,
		}
		if n.Initial {
			initial = n.ID
			initialCount++
		}
		if n.Terminal {
			terminalCount++
		}
	}
	if initialCount == 0 {
		return nil, fmt.Errorf("workflow %q has no initial state", name)
	}
	if initialCount > 1 {
		return nil, fmt.Errorf("workflow %q has %d initial states, want exactly one", name, initialCount)
	}
	if terminalCount == 0 {
		return nil, fmt.Errorf("workflow %q has no terminal states", name)
	}

	adjacency := make(map[string][]string)
	transitions := make([]flow.Transition, 0, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := states[e.From]; !ok {
			return nil, fmt.Errorf("workflow %q: transition references unknown state %q", name, e.From)
		}
		if _, ok := states[e.To]; !ok {
			return nil, fmt.Errorf("workflow %q: transition references unknown state %q", name, e.To)
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
		transitions = append(transitions, flow.Transition{From: e.From, To: e.To, Condition: e.Condition})
	}

	// Every non-terminal state needs a way out.
	for id, s := range states {
		if !s.Terminal && len(adjacency[id]) == 0 {
			return nil, fmt.Errorf("workflow %q: non-terminal state %q has no outgoing transitions", name, id)
		}
	}

	if unreached := unreachable(states, adjacency, initial); len(unreached) > 0 {
		sort.Strings(unreached)
		return nil, fmt.Errorf("workflow %q: states not reachable from %q: %s",
			name, initial, strings.Join(unreached, ", "))
	}

	// Advisory only. Cyclic workflows are valid; the executor's
	// transition ceiling bounds them at runtime.
	if cycle := findCycle(adjacency, initial); len(cycle) > 0 {
		slog.Warn("workflow contains cycles",
			"workflow", name, "cycle", strings.Join(cycle, " -> "))
	}

	return flow.NewDefinition(name, g.Meta.Description, states, transitions, g.Meta.Parameters, initial), nil
}

// unreachable returns the states a BFS from initial never visits.
func unreachable(states map[string]*flow.State, adjacency map[string][]string, initial string) []string {
	seen := map[string]bool{initial: true}
	queue := []string{initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var missing []string
	for id := range states {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// findCycle runs a DFS from initial and returns one cycle as a state
// path if any back edge exists, or nil.
func findCycle(adjacency map[string][]string, initial string) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)
	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, next := range adjacency[id] {
			if color[next] == gray {
				// Slice the path from the first occurrence of next.
				for i, p := range path {
					if p == next {
						cycle = append(append([]string{}, path[i:]...), next)
						return true
					}
				}
			}
			if color[next] == white && visit(next) {
				return true
			}
		}
		color[id] = black
		path = path[:len(path)-1]
		return false
	}

	if visit(initial) {
		return cycle
	}
	return nil
}
