package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a backend failure carrying the HTTP status the service returned.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned by Generate when no backend produced a completion.
type ExhaustedError struct {
	LastErr error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr == nil {
		return "all providers exhausted"
	}
	return fmt.Sprintf("all providers exhausted: %v", e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// ErrNoBackends is returned by NewEngine when nothing is registered.
var ErrNoBackends = errors.New("no completion backends configured")

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRateLimited
	outcomeTransient
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// attemptOutcome is the classified result of one backend call.
type attemptOutcome struct {
	kind outcomeKind
	resp *Response
	err  error
}

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
}

// IsRateLimited reports whether err signals throttling: a 429 status anywhere in
// the chain, or one of the known phrases in the message (case-insensitive).
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func classify(resp *Response, err error) attemptOutcome {
	switch {
	case err == nil:
		return attemptOutcome{kind: outcomeSuccess, resp: resp}
	case IsRateLimited(err):
		return attemptOutcome{kind: outcomeRateLimited, err: err}
	default:
		return attemptOutcome{kind: outcomeTransient, err: err}
	}
}
