package llm

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/ai-cv-evaluator/internal/config"
	"alfredoptarigan/ai-cv-evaluator/internal/logger"
)

// NewClientFromConfig builds every enabled backend and wires them into a Client.
// geminiClient may be nil when no Gemini key is configured.
func NewClientFromConfig(cfg *config.Config, geminiClient *genai.Client, log *zap.Logger) (*Client, error) {
	log = logger.OrNop(log)
	var specs []BackendSpec

	if cfg.Gemini.Enabled() && geminiClient != nil {
		specs = append(specs, BackendSpec{
			Backend:           NewGeminiBackend(geminiClient, cfg.Gemini.Model),
			Priority:          cfg.Gemini.Priority,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		})
	}

	if cfg.Anthropic.Enabled() {
		backend, err := NewClaudeBackend(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create claude backend: %w", err)
		}
		specs = append(specs, BackendSpec{
			Backend:           backend,
			Priority:          cfg.Anthropic.Priority,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		})
	}

	if cfg.Groq.Enabled() {
		backend, err := NewGroqBackend(cfg.Groq.BaseURL, cfg.Groq.APIKey, cfg.Groq.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create groq backend: %w", err)
		}
		specs = append(specs, BackendSpec{
			Backend:           backend,
			Priority:          cfg.Groq.Priority,
			RequestsPerMinute: cfg.Groq.RequestsPerMinute,
		})
	}

	for _, spec := range specs {
		log.Info("completion backend enabled",
			append(logger.CommonFields(spec.Backend.Name(), spec.Backend.Model()),
				zap.Int("priority", spec.Priority),
				zap.Int("rpm", spec.RequestsPerMinute))...,
		)
	}

	return NewClient(ClientConfig{
		MaxRetries:        cfg.LLM.MaxRetries,
		BaseDelay:         cfg.LLM.BaseDelay,
		BackoffMultiplier: cfg.LLM.BackoffMultiplier,
		RateLimitCooldown: cfg.LLM.RateLimitCooldown,
	}, NewRateTracker(defaultWindow), log, specs...)
}
