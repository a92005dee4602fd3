package flow

import "time"

// ActionKind identifies the kind of work a state performs. The set is
// closed: a new kind is only added when the file format defines one.
type ActionKind string

const (
	ActionShell  ActionKind = "shell"
	ActionPrompt ActionKind = "prompt"
	ActionSet    ActionKind = "set"
	ActionWait   ActionKind = "wait"
	ActionAbort  ActionKind = "abort"
)

// ActionSpec describes the action attached to a state. Kind selects the
// variant; only the fields belonging to that variant are populated.
type ActionSpec struct {
	Kind ActionKind `json:"kind" yaml:"kind"`

	// shell
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// prompt
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Into     string `json:"into,omitempty" yaml:"into,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`

	// set
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// wait
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// abort
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// shell and prompt; zero means the dispatcher default applies.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// State is one node of a workflow graph.
type State struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Initial     bool        `json:"initial,omitempty" yaml:"initial,omitempty"`
	Terminal    bool        `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	Action      *ActionSpec `json:"action,omitempty" yaml:"action,omitempty"`
}

// Transition is a directed, optionally guarded edge. Transitions are
// evaluated in declaration order; an empty Condition always matches.
type Transition struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ParameterSpec declares one workflow input parameter.
type ParameterSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// WorkflowDefinition is a validated workflow graph. It is immutable once
// built by the graph package and safe to share across concurrent runs.
type WorkflowDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	States      map[string]*State  `json:"states" yaml:"states"`
	Transitions []Transition       `json:"transitions" yaml:"transitions"`
	Parameters  []ParameterSpec    `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	initial string
}

// NewDefinition is used by the graph package once validation has passed.
func NewDefinition(name, description string, states map[string]*State, transitions []Transition, params []ParameterSpec, initial string) *WorkflowDefinition {
	return &WorkflowDefinition{
		Name:        name,
		Description: description,
		States:      states,
		Transitions: transitions,
		Parameters:  params,
		initial:     initial,
	}
}

// Initial returns the ID of the unique initial state.
func (d *WorkflowDefinition) Initial() string { return d.initial }

// Outgoing returns the transitions leaving the given state, in
// declaration order.
func (d *WorkflowDefinition) Outgoing(stateID string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.From == stateID {
			out = append(out, t)
		}
	}
	return out
}
