package diagram

import (
	"strings"
	"time"

	"github.com/taehoon/flowkit/internal/flow"
)

// Action line grammar attached to a state description line:
//
//	shell[timeout=30s] <command>
//	prompt[into=key, timeout=5m, model=gemini/gemini-2.0-flash] <template>
//	set <name> = <expression>
//	wait <duration>
//	abort <reason>
//
// The option block is optional. A line whose first word is none of the
// keywords is treated as a plain description, not an error; a line that
// starts with a keyword but fails its grammar is a parse error.
func parseAction(text string, lineNo int) (*flow.ActionSpec, bool, error) {
	keyword, rest := splitKeyword(text)
	switch keyword {
	case "shell", "prompt", "set", "wait", "abort":
	default:
		return nil, false, nil
	}

	opts, rest, err := splitOptions(rest, lineNo)
	if err != nil {
		return nil, false, err
	}
	rest = strings.TrimSpace(rest)

	spec := &flow.ActionSpec{}
	switch keyword {
	case "shell":
		if rest == "" {
			return nil, false, errAt(lineNo, "shell action requires a command")
		}
		spec.Kind = flow.ActionShell
		spec.Command = rest
	case "prompt":
		if rest == "" {
			return nil, false, errAt(lineNo, "prompt action requires a template")
		}
		spec.Kind = flow.ActionPrompt
		spec.Template = rest
	case "set":
		name, expr, ok := strings.Cut(rest, "=")
		name = strings.TrimSpace(name)
		expr = strings.TrimSpace(expr)
		if !ok || expr == "" {
			return nil, false, errAt(lineNo, "set action requires <name> = <expression>")
		}
		if !ValidIdent(name) {
			return nil, false, errAt(lineNo, "invalid variable name %q", name)
		}
		spec.Kind = flow.ActionSet
		spec.Name = name
		spec.Expression = expr
	case "wait":
		d, err := time.ParseDuration(rest)
		if err != nil || d <= 0 {
			return nil, false, errAt(lineNo, "wait action requires a positive duration, got %q", rest)
		}
		spec.Kind = flow.ActionWait
		spec.Duration = d
	case "abort":
		spec.Kind = flow.ActionAbort
		spec.Reason = rest
		if spec.Reason == "" {
			spec.Reason = "aborted"
		}
	}

	for key, val := range opts {
		switch {
		case key == "timeout" && (spec.Kind == flow.ActionShell || spec.Kind == flow.ActionPrompt):
			d, err := time.ParseDuration(val)
			if err != nil || d <= 0 {
				return nil, false, errAt(lineNo, "invalid timeout %q", val)
			}
			spec.Timeout = d
		case key == "into" && spec.Kind == flow.ActionPrompt:
			if !ValidIdent(val) {
				return nil, false, errAt(lineNo, "invalid into variable %q", val)
			}
			spec.Into = val
		case key == "model" && spec.Kind == flow.ActionPrompt:
			spec.Model = val
		default:
			return nil, false, errAt(lineNo, "option %q not valid for %s action", key, keyword)
		}
	}

	return spec, true, nil
}

// splitKeyword returns the first word (up to whitespace or '[') and the
// remainder of the line.
func splitKeyword(text string) (string, string) {
	for i, r := range text {
		if r == ' ' || r == '\t' {
			return text[:i], text[i+1:]
		}
		if r == '[' {
			return text[:i], text[i:]
		}
	}
	return text, ""
}

// splitOptions parses a leading "[k=v, k=v]" block if present.
func splitOptions(rest string, lineNo int) (map[string]string, string, error) {
	rest = strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(rest, "[") {
		return nil, rest, nil
	}
	end := strings.Index(rest, "]")
	if end < 0 {
		return nil, "", errAt(lineNo, "unterminated option block")
	}

	opts := make(map[string]string)
	for _, pair := range strings.Split(rest[1:end], ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			return nil, "", errAt(lineNo, "malformed option %q", pair)
		}
		if _, dup := opts[key]; dup {
			return nil, "", errAt(lineNo, "duplicate option %q", key)
		}
		opts[key] = val
	}
	return opts, rest[end+1:], nil
}
