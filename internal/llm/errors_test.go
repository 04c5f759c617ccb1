package llm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429 without phrase", &StatusError{Provider: "x", StatusCode: http.StatusTooManyRequests, Message: "nope"}, true},
		{"wrapped 429", fmt.Errorf("call: %w", &StatusError{StatusCode: 429}), true},
		{"too many requests message", errors.New("Too Many Requests"), true},
		{"rate limit message", errors.New("Rate Limit reached for model"), true},
		{"quota message", errors.New("QUOTA EXCEEDED for project"), true},
		{"server error", &StatusError{Provider: "x", StatusCode: http.StatusInternalServerError, Message: "internal"}, false},
		{"plain failure", errors.New("connection reset by peer"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRateLimited(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, outcomeSuccess, classify(&Response{Text: "ok"}, nil).kind)
	assert.Equal(t, outcomeRateLimited, classify(nil, &StatusError{StatusCode: 429}).kind)
	assert.Equal(t, outcomeTransient, classify(nil, errors.New("boom")).kind)
	assert.Equal(t, "rate_limited", outcomeRateLimited.String())
}

func TestExhaustedErrorUnwraps(t *testing.T) {
	cause := errors.New("last")
	err := &ExhaustedError{LastErr: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "all providers exhausted: last", err.Error())
	assert.Equal(t, "all providers exhausted", (&ExhaustedError{}).Error())
}

func TestUsageAdd(t *testing.T) {
	total := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, total)
}
