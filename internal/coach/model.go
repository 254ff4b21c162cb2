// Package coach turns chat state into completion requests for the coaching model.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
	"google.golang.org/genai"
)

// Model is an opaque text-completion capability.
type Model interface {
	// Complete returns the plain-text reply for prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteJSON asks for a reply that is a single JSON document.
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// ErrNoModel is returned when no API key was configured.
var ErrNoModel = fmt.Errorf("%w: no model configured, set GEMINI_API_KEY", domain.ErrAuth)

const defaultTemperature = 0.3

// GenAIModel implements Model on the Gemini API.
type GenAIModel struct {
	client *genai.Client
	model  string
}

// NewGenAIModel creates a Gemini-backed model.
func NewGenAIModel(ctx context.Context, apiKey, model string) (*GenAIModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIModel{client: client, model: model}, nil
}

// Complete implements Model.
func (m *GenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.generate(ctx, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](defaultTemperature),
	})
}

// CompleteJSON implements Model.
func (m *GenAIModel) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return m.generate(ctx, prompt, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](defaultTemperature),
		ResponseMIMEType: "application/json",
	})
}

func (m *GenAIModel) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", domain.ErrNetwork, err)
	}
	return replyText(resp)
}

// ErrNoCandidates is returned when the model answered without any candidate.
var ErrNoCandidates = fmt.Errorf("%w: model returned no candidates", domain.ErrNetwork)

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	return resp.Text(), nil
}
