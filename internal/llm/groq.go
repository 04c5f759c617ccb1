package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	GroqBackendName    = "groq"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GroqBackend talks to the OpenAI-compatible chat completions endpoint.
type GroqBackend struct {
	http      *resty.Client
	modelName string
}

func NewGroqBackend(baseURL, apiKey, model string) (*GroqBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("groq api key is required")
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGroqModel
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)

	return &GroqBackend{http: client, modelName: model}, nil
}

func (g *GroqBackend) Name() string  { return GroqBackendName }
func (g *GroqBackend) Model() string { return g.modelName }

// Complete implements Backend.
func (g *GroqBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	var (
		out    chatCompletionResponse
		apiErr chatErrorResponse
	)

	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{
			Model:       g.modelName,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("groq: failed to send request: %w", err)
	}

	if resp.IsError() {
		msg := strings.TrimSpace(apiErr.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, &StatusError{Provider: GroqBackendName, StatusCode: resp.StatusCode(), Message: msg}
	}

	if len(out.Choices) == 0 {
		return nil, errors.New("groq: no choices in response")
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("groq: empty response")
	}

	model := out.Model
	if model == "" {
		model = g.modelName
	}

	return &Response{
		Text:     text,
		Provider: GroqBackendName,
		Model:    model,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}
