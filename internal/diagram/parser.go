package diagram

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const startMarker = "[*]"

var (
	identPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	stateDeclPattern = regexp.MustCompile(`^state\s+"([^"]*)"\s+as\s+(\S+)$`)
)

// Parse parses a workflow file into a raw Graph. It is a pure function:
// no filesystem or environment access. Errors are ErrWrongType when the
// text does not declare a state diagram, or *ParseError for syntax
// problems (including duplicate action declarations).
func Parse(src string) (*Graph, error) {
	g := &Graph{}

	body, bodyOffset, err := splitFrontmatter(src, &g.Meta)
	if err != nil {
		return nil, err
	}

	p := &parser{graph: g, offset: bodyOffset}
	if err := p.parseBody(body); err != nil {
		return nil, err
	}
	return g, nil
}

// splitFrontmatter strips a leading "---" delimited YAML block, filling
// meta. Returns the remaining body and the number of lines consumed.
func splitFrontmatter(src string, meta *Frontmatter) (string, int, error) {
	lines := strings.Split(src, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return src, 0, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			block := strings.Join(lines[1:i], "\n")
			if err := yaml.Unmarshal([]byte(block), meta); err != nil {
				// yaml errors carry their own line positions.
				return "", 0, fmt.Errorf("parsing frontmatter: %w", err)
			}
			return strings.Join(lines[i+1:], "\n"), i + 1, nil
		}
	}
	return "", 0, errAt(1, "unterminated frontmatter block")
}

type parser struct {
	graph   *Graph
	offset  int  // lines consumed by frontmatter
	started bool // directive line seen
}

func (p *parser) parseBody(body string) error {
	for i, raw := range strings.Split(body, "\n") {
		lineNo := p.offset + i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}

		if !p.started {
			if line != "stateDiagram-v2" && line != "stateDiagram" {
				return ErrWrongType
			}
			p.started = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "direction "):
			// Layout hint, irrelevant to execution.
		case strings.Contains(line, "-->"):
			if err := p.parseEdge(line, lineNo); err != nil {
				return err
			}
		case stateDeclPattern.MatchString(line):
			m := stateDeclPattern.FindStringSubmatch(line)
			n, err := p.ensureNode(m[2], lineNo)
			if err != nil {
				return err
			}
			n.Description = m[1]
		case strings.Contains(line, ":"):
			if err := p.parseStateLine(line, lineNo); err != nil {
				return err
			}
		default:
			return errAt(lineNo, "unrecognized declaration %q", line)
		}
	}

	if !p.started {
		return ErrWrongType
	}
	return nil
}

// parseEdge handles "a --> b", "a --> b: guard", "[*] --> a" and
// "a --> [*]".
func (p *parser) parseEdge(line string, lineNo int) error {
	parts := strings.SplitN(line, "-->", 2)
	from := strings.TrimSpace(parts[0])
	rest := strings.TrimSpace(parts[1])

	to, condition := rest, ""
	if idx := strings.Index(rest, ":"); idx >= 0 {
		to = strings.TrimSpace(rest[:idx])
		condition = strings.TrimSpace(rest[idx+1:])
	}
	if from == "" || to == "" {
		return errAt(lineNo, "malformed transition %q", line)
	}

	switch {
	case from == startMarker && to == startMarker:
		return errAt(lineNo, "transition cannot connect two boundary markers")
	case from == startMarker:
		n, err := p.ensureNode(to, lineNo)
		if err != nil {
			return err
		}
		if condition != "" {
			return errAt(lineNo, "initial transition cannot carry a condition")
		}
		n.Initial = true
	case to == startMarker:
		n, err := p.ensureNode(from, lineNo)
		if err != nil {
			return err
		}
		if condition != "" {
			return errAt(lineNo, "terminal transition cannot carry a condition")
		}
		n.Terminal = true
	default:
		if _, err := p.ensureNode(from, lineNo); err != nil {
			return err
		}
		if _, err := p.ensureNode(to, lineNo); err != nil {
			return err
		}
		p.graph.Edges = append(p.graph.Edges, Edge{From: from, To: to, Condition: condition, Line: lineNo})
	}
	return nil
}

// parseStateLine handles "id: <action or description>".
func (p *parser) parseStateLine(line string, lineNo int) error {
	idx := strings.Index(line, ":")
	id := strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx+1:])

	n, err := p.ensureNode(id, lineNo)
	if err != nil {
		return err
	}

	if action, ok, err := parseAction(rest, lineNo); err != nil {
		return err
	} else if ok {
		if n.Action != nil {
			return errAt(lineNo, "duplicate action for state %q", id)
		}
		n.Action = action
		return nil
	}

	n.Description = rest
	return nil
}

func (p *parser) ensureNode(id string, lineNo int) (*Node, error) {
	if !identPattern.MatchString(id) {
		return nil, errAt(lineNo, "invalid state identifier %q", id)
	}
	if n := p.graph.Node(id); n != nil {
		return n, nil
	}
	n := &Node{ID: id, Line: lineNo}
	p.graph.Nodes = append(p.graph.Nodes, n)
	return n, nil
}

// ValidIdent reports whether s is a legal state or variable identifier.
func ValidIdent(s string) bool { return identPattern.MatchString(s) }
