// Package diagram parses workflow definition files: an optional YAML
// frontmatter block followed by a Mermaid stateDiagram-v2 subset. The
// parser produces a raw node/edge list; structural validation lives in
// the graph package.
package diagram

import (
	"errors"
	"fmt"

	"github.com/taehoon/flowkit/internal/flow"
)

// ErrWrongType indicates the text does not declare a state diagram.
var ErrWrongType = errors.New("not a stateDiagram definition")

// ParseError is a syntax error with the 1-based line it occurred on.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func errAt(line int, format string, args ...any) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Frontmatter is the optional metadata block at the top of a workflow file.
type Frontmatter struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Parameters  []flow.ParameterSpec `yaml:"parameters"`
}

// Node is one declared state, prior to validation.
type Node struct {
	ID          string
	Description string
	Initial     bool
	Terminal    bool
	Action      *flow.ActionSpec
	Line        int
}

// Edge is one declared transition, prior to validation. Order in the
// Edges slice is declaration order.
type Edge struct {
	From      string
	To        string
	Condition string
	Line      int
}

// Graph holds the raw parse result.
type Graph struct {
	Meta  Frontmatter
	Nodes []*Node
	Edges []Edge
}

// Node returns the declared node with the given ID, or nil.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
