package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/taehoon/flowkit/internal/config"
)

var _ Backend = (*GeminiBackend)(nil)

// GeminiBackend uses the google.golang.org/genai Go SDK directly for
// text generation.
type GeminiBackend struct {
	apiKey  string
	name    string
	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiBackend creates a Gemini text backend for the given provider name.
func NewGeminiBackend(providerName, apiKey string) *GeminiBackend {
	return &GeminiBackend{
		name:   providerName,
		apiKey: apiKey,
	}
}

func (g *GeminiBackend) Name() string { return g.name }

func (g *GeminiBackend) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

const defaultGeminiModel = "gemini-2.0-flash"

// Complete sends the prompt and returns the concatenated text parts of
// the first candidate.
func (g *GeminiBackend) Complete(ctx context.Context, req PromptRequest) (string, error) {
	if err := g.ensureClient(ctx); err != nil {
		return "", fmt.Errorf("gemini: client init failed: %w", err)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: no text in response")
	}
	return text, nil
}

func init() {
	RegisterBackend("gemini", func(name string, cfg config.ProviderConfig) Backend {
		return NewGeminiBackend(name, cfg.APIKey)
	})
}
