package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrRateLimit means the vendor (or the local limiter) refused the request
// for now. Retryable.
type ErrRateLimit struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s: %v", e.name(), e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: rate limited: %v", e.name(), e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

func (e *ErrRateLimit) name() string { return orDefault(e.Provider, "llm") }

// ErrProviderUnavailable covers 5xx answers and transport failures. Retryable.
type ErrProviderUnavailable struct {
	Provider string
	Err      error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err == nil {
		return orDefault(e.Provider, "llm") + ": provider unavailable"
	}
	return fmt.Sprintf("%s: provider unavailable: %v", orDefault(e.Provider, "llm"), e.Err)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrRejected is a 4xx answer other than 429: bad key, unknown model,
// malformed request. Never retried.
type ErrRejected struct {
	Provider string
	Status   int
	Err      error
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("%s: request rejected (%d %s): %v", orDefault(e.Provider, "llm"), e.Status, http.StatusText(e.Status), e.Err)
}

func (e *ErrRejected) Unwrap() error { return e.Err }

// ErrInvalidResponse means the output was not the JSON the schema asked for.
// Retried once.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid model output: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded means a structured answer was cut off. The partial
// JSON is kept for logging. Not retried: the same budget would cut it again.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "model output truncated at the max token limit"
}

// classify maps a vendor HTTP status to the error taxonomy. status 0 means
// the request never got an answer.
func classify(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Provider: provider, Err: err}
	case status >= 400 && status < 500:
		return &ErrRejected{Provider: provider, Status: status, Err: err}
	default:
		return &ErrProviderUnavailable{Provider: provider, Err: err}
	}
}

func orDefault[T ~string](s, def T) T {
	if s == "" {
		return def
	}
	return s
}
