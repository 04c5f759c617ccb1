package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	ClaudeBackendName      = "claude"
	defaultClaudeModel     = "claude-sonnet-4-20250514"
	defaultClaudeMaxTokens = 4096
)

type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeBackend completes prompts with the Anthropic Messages API.
type ClaudeBackend struct {
	messages  messageCreator
	modelName string
}

func NewClaudeBackend(apiKey, model string) (*ClaudeBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultClaudeModel
	}

	// retries belong to the fallback loop
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &ClaudeBackend{messages: &client.Messages, modelName: model}, nil
}

func (c *ClaudeBackend) Name() string  { return ClaudeBackendName }
func (c *ClaudeBackend) Model() string { return c.modelName }

// Complete implements Backend.
func (c *ClaudeBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: ClaudeBackendName, StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
		}
		return nil, fmt.Errorf("claude: failed to generate text: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	output := strings.TrimSpace(text.String())
	if output == "" {
		return nil, errors.New("claude: empty response")
	}

	prompt := int(resp.Usage.InputTokens)
	completion := int(resp.Usage.OutputTokens)

	return &Response{
		Text:     output,
		Provider: ClaudeBackendName,
		Model:    c.modelName,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}
