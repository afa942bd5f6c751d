package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

var errEmptyResponse = errors.New("no response from model")

// Provider implements Completer over an ADK model.
type Provider struct {
	llm model.LLM
}

// GeminiConfig holds configuration for the Gemini-backed provider.
type GeminiConfig struct {
	APIKey string // If empty, uses GOOGLE_API_KEY env var
	Model  string // e.g., "gemini-3-flash-preview"
}

// NewProvider wraps an existing ADK model.
func NewProvider(llm model.LLM) *Provider {
	return &Provider{llm: llm}
}

// NewGeminiProvider creates a provider backed by Gemini.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = os.Getenv("GOOGLE_MODEL")
	}
	if modelName == "" {
		modelName = "gemini-3-flash-preview"
	}

	llm, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini model (%s): %w", modelName, err)
	}
	return &Provider{llm: llm}, nil
}

// Name returns the model name.
func (p *Provider) Name() string {
	return p.llm.Name()
}

// Complete generates reply text. Errors are classified (see Classify).
func (p *Provider) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxOutputTokens),
		Temperature:     genai.Ptr(float32(req.Temperature)),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	llmReq := &model.LLMRequest{
		Model:    p.llm.Name(),
		Contents: []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		Config:   cfg,
	}

	var sb strings.Builder
	for resp, err := range p.llm.GenerateContent(ctx, llmReq, false) {
		if err != nil {
			return "", Classify(fmt.Errorf("generate failed: %w", err))
		}
		if resp == nil {
			continue
		}
		if resp.ErrorCode != "" {
			return "", Classify(fmt.Errorf("generate failed: %s: %s", resp.ErrorCode, resp.ErrorMessage))
		}
		if resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, errEmptyResponse)
	}
	return text, nil
}
