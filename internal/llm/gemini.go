package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	GeminiBackendName  = "gemini"
	defaultGeminiModel = "gemini-2.5-flash"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend completes prompts with the Gemini API.
type GeminiBackend struct {
	models    contentGenerator
	modelName string
}

// NewGenAIClient creates a Gemini API client shared by completion and embeddings.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func NewGeminiBackend(client *genai.Client, model string) *GeminiBackend {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiBackend{models: client.Models, modelName: model}
}

func (g *GeminiBackend) Name() string  { return GeminiBackendName }
func (g *GeminiBackend) Model() string { return g.modelName }

// Complete implements Backend.
func (g *GeminiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.UserPrompt}},
	}}

	resp, err := g.models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		return nil, g.wrapError(err)
	}
	if resp == nil {
		return nil, errors.New("gemini: no response generated (nil response)")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		// first candidate with content wins
		if builder.Len() > 0 {
			break
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return nil, errors.New("gemini: no text content in response")
	}

	out := &Response{Text: text, Provider: GeminiBackendName, Model: g.modelName}
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *GeminiBackend) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: GeminiBackendName, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Provider: GeminiBackendName, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return fmt.Errorf("gemini: failed to generate text: %w", err)
}
