package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiBackendComplete(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "thinking", Thought: true}, {Text: `{"ok":true}`}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 30,
			TotalTokenCount:      150,
		},
	}}
	backend := &GeminiBackend{models: gen, modelName: "gemini-test"}

	resp, err := backend.Complete(context.Background(), Request{SystemPrompt: "system", UserPrompt: "user", Temperature: 0.3, MaxTokens: 512})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}, resp.Usage)
	assert.Equal(t, "gemini-test", gen.model)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, "system", gen.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(512), gen.config.MaxOutputTokens)
	assert.InDelta(t, 0.3, *gen.config.Temperature, 1e-6)
	assert.Equal(t, "user", gen.contents[0].Parts[0].Text)
}

func TestGeminiBackendMapsAPIErrorStatus(t *testing.T) {
	gen := &fakeGenerator{err: genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "slow down"}}
	backend := &GeminiBackend{models: gen, modelName: "gemini-test"}

	_, err := backend.Complete(context.Background(), Request{UserPrompt: "user"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, IsRateLimited(err))
}

func TestGeminiBackendEmptyResponse(t *testing.T) {
	backend := &GeminiBackend{models: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, modelName: "m"}
	_, err := backend.Complete(context.Background(), Request{UserPrompt: "user"})
	assert.Error(t, err)

	backend = &GeminiBackend{models: &fakeGenerator{err: errors.New("dial tcp: refused")}, modelName: "m"}
	_, err = backend.Complete(context.Background(), Request{UserPrompt: "user"})
	assert.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

type fakeMessages struct {
	params anthropic.MessageNewParams
	resp   *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.resp, f.err
}

func TestClaudeBackendComplete(t *testing.T) {
	msgs := &fakeMessages{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "A solid candidate."}},
		Usage:   anthropic.Usage{InputTokens: 40, OutputTokens: 12},
	}}
	backend := &ClaudeBackend{messages: msgs, modelName: "claude-test"}

	resp, err := backend.Complete(context.Background(), Request{SystemPrompt: "be brief", UserPrompt: "summarize", Temperature: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "A solid candidate.", resp.Text)
	assert.Equal(t, Usage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}, resp.Usage)
	assert.Equal(t, int64(defaultClaudeMaxTokens), msgs.params.MaxTokens)
	require.Len(t, msgs.params.System, 1)
	assert.Equal(t, "be brief", msgs.params.System[0].Text)
}

func TestClaudeBackendEmptyContent(t *testing.T) {
	backend := &ClaudeBackend{messages: &fakeMessages{resp: &anthropic.Message{}}, modelName: "claude-test"}
	_, err := backend.Complete(context.Background(), Request{UserPrompt: "x"})
	assert.Error(t, err)
}

func TestGroqBackendComplete(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "llama-test",
			"choices": [{"message": {"role": "assistant", "content": "  hello  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	backend, err := NewGroqBackend(srv.URL, "gsk-test", "llama-test")
	require.NoError(t, err)

	resp, err := backend.Complete(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "hi", MaxTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, GroqBackendName, resp.Provider)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, 64, got.MaxTokens)
}

func TestGroqBackendRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "please wait", "type": "requests"}}`))
	}))
	defer srv.Close()

	backend, err := NewGroqBackend(srv.URL, "gsk-test", "")
	require.NoError(t, err)

	_, err = backend.Complete(context.Background(), Request{UserPrompt: "hi"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "please wait", statusErr.Message)
	assert.True(t, IsRateLimited(err))
}

func TestBackendConstructorsRequireKeys(t *testing.T) {
	_, err := NewGroqBackend("", " ", "")
	assert.Error(t, err)
	_, err = NewClaudeBackend("", "")
	assert.Error(t, err)
	_, err = NewGenAIClient(context.Background(), "")
	assert.Error(t, err)
}
