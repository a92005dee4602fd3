// Package eval evaluates guard and assignment expressions against a
// run's variable store, and renders {{key}} templates. Expressions use
// the expr language; evaluation is side-effect free.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

var templatePattern = regexp.MustCompile(`\{\{([\w-]+)\}\}`)

// Value evaluates expression against the context and returns its result.
// Compile failures (including references to undefined variables) and
// runtime failures are returned wrapped; they never panic.
func Value(expression string, context map[string]any) (any, error) {
	env := environment(context)

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// Truthy evaluates a guard expression. The empty expression is the
// unconditioned default and always matches.
func Truthy(expression string, context map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}
	result, err := Value(expression, context)
	if err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

// Render substitutes {{key}} references with context values. Unknown
// keys are left intact so a malformed template surfaces downstream as
// a readable literal rather than a crash.
func Render(template string, context map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.Trim(match, "{}")
		val, ok := context[key]
		if !ok || val == nil {
			return match
		}
		return fmt.Sprintf("%v", val)
	})
}

// environment hides internal double-underscore keys from expressions.
func environment(context map[string]any) map[string]any {
	env := make(map[string]any, len(context))
	for k, v := range context {
		if strings.HasPrefix(k, "__") {
			continue
		}
		env[k] = v
	}
	return env
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
