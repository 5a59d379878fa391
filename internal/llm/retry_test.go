package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testRetry(p Provider, attempts int) (*RetryProvider, *[]time.Duration) {
	var waits []time.Duration
	r := WithRetry(p, RetryConfig{
		MaxAttempts: attempts,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     300 * time.Millisecond,
		Multiplier:  2,
	}).(*RetryProvider)
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Provider: "openai"}},
		MockResponse{Err: &ErrRateLimit{Provider: "openai"}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	r, waits := testRetry(mock, 3)

	if _, err := r.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount() != 3 {
		t.Fatalf("calls = %d", mock.CallCount())
	}
	if len(*waits) != 2 {
		t.Fatalf("waits = %v", *waits)
	}
	if w := (*waits)[0]; w < 100*time.Millisecond || w > 125*time.Millisecond {
		t.Errorf("first wait %s outside [100ms, 125ms]", w)
	}
	if w := (*waits)[1]; w < 200*time.Millisecond || w > 250*time.Millisecond {
		t.Errorf("second wait %s outside [200ms, 250ms]", w)
	}
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMockProvider()
	r, waits := testRetry(mock, 3)

	_, err := r.Generate(context.Background(), Request{})
	var unavailable *ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if mock.CallCount() != 3 || len(*waits) != 2 {
		t.Fatalf("calls = %d waits = %d", mock.CallCount(), len(*waits))
	}
}

func TestRetry_NeverRetried(t *testing.T) {
	for name, failure := range map[string]error{
		"rejected":  &ErrRejected{Provider: "anthropic", Status: 401},
		"truncated": &ErrMaxTokensExceeded{},
		"cancelled": context.Canceled,
	} {
		mock := NewMockProvider(MockResponse{Err: failure}, MockResponse{Content: json.RawMessage(`{}`)})
		r, _ := testRetry(mock, 3)
		if _, err := r.Generate(context.Background(), Request{}); !errors.Is(err, failure) {
			t.Errorf("%s: got %v", name, err)
		}
		if mock.CallCount() != 1 {
			t.Errorf("%s: calls = %d, want 1", name, mock.CallCount())
		}
	}
}

func TestRetry_InvalidResponseRetriedOnce(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrInvalidResponse{Err: errors.New("not JSON")}},
		MockResponse{Err: &ErrInvalidResponse{Err: errors.New("still not JSON")}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	r, _ := testRetry(mock, 5)

	_, err := r.Generate(context.Background(), Request{})
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", mock.CallCount())
	}
}

func TestRetry_HonoursRetryAfter(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: 7 * time.Second}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	r, waits := testRetry(mock, 2)

	if _, err := r.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (*waits)[0] != 7*time.Second {
		t.Fatalf("wait = %s", (*waits)[0])
	}
}

func TestRetry_CapsAtMaxWait(t *testing.T) {
	r, _ := testRetry(NewMockProvider(), 1)
	if w := r.backoff(6, errors.New("x")); w > 375*time.Millisecond {
		t.Fatalf("backoff %s exceeds MaxWait plus jitter", w)
	}
}

func TestRetry_StopsWhenContextEnds(t *testing.T) {
	mock := NewMockProvider()
	r := WithRetry(mock, RetryConfig{MaxAttempts: 3, InitialWait: time.Hour}).(*RetryProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Generate(ctx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("calls = %d", mock.CallCount())
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	if _, err := WithRetry(mock, RetryConfig{}).Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
