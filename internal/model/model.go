// Package model provides pluggable prompt-execution backends for
// prompt actions. Backends are registered by type name and built from
// provider configuration.
package model

import "context"

// PromptRequest is one prompt invocation.
type PromptRequest struct {
	Model  string // backend-specific model name, may be empty
	System string // optional system prompt
	Prompt string // rendered user prompt
}

// Backend executes a prompt and returns the response text. The call
// must honor ctx cancellation and deadlines.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req PromptRequest) (string, error)
}
