package llm

import (
	"context"
	"fmt"
)

// Request is a provider-agnostic completion request.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// Usage is the token accounting reported by a backend. Zero when not reported.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Response is the output of one completion call.
type Response struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Backend is a single language-model service. Implementations return a
// *StatusError when the service reports an HTTP status.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// BackendSpec registers a backend with the fallback engine.
type BackendSpec struct {
	Backend  Backend
	Priority int
	// RequestsPerMinute is the usage ceiling; zero means unlimited.
	RequestsPerMinute int
}

func (s BackendSpec) validate() error {
	if s.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if s.Backend.Name() == "" {
		return fmt.Errorf("backend name is required")
	}
	if s.RequestsPerMinute < 0 {
		return fmt.Errorf("backend %s: requests per minute must not be negative", s.Backend.Name())
	}
	return nil
}

// Options tunes one Generate call.
type Options struct {
	Temperature float32
	MaxTokens   int
	// PreferredBackend moves the named backend to the front of the try-order.
	PreferredBackend string
}
