package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/llm"
)

func TestLLMEvaluator_ParsesAndClamps(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: json.RawMessage(`{"points": 7.5, "narrative": "Solid mapping, owners missing."}`)},
		llm.MockResponse{Content: json.RawMessage(`{"points": 99, "narrative": "Perfect."}`)},
	)
	ev := NewLLMEvaluator(mock, DefaultLLMEvaluatorConfig())
	item := testItem()
	c := item.Rubric.Criteria[1]

	got, err := ev.Evaluate(context.Background(), c, fullResponse(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Points != 7.5 || got.Narrative != "Solid mapping, owners missing." {
		t.Errorf("evaluation = %+v", got)
	}

	got, _ = ev.Evaluate(context.Background(), c, fullResponse(), item)
	if got.Points != c.Points {
		t.Errorf("points = %v, want clamp to %v", got.Points, c.Points)
	}

	req := mock.Calls[0]
	if req.Schema != EvaluationSchema {
		t.Error("expected the evaluation schema")
	}
	msg := req.Messages[0].Content
	for _, want := range []string{"Critical assets", "Maximum points: 10", "dependency, impact", "patient care"} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt missing %q:\n%s", want, msg)
		}
	}
}

func TestLLMEvaluator_ProviderErrorPropagates(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{}})
	ev := NewLLMEvaluator(mock, DefaultLLMEvaluatorConfig())
	item := testItem()

	_, err := ev.Evaluate(context.Background(), item.Rubric.Criteria[1], fullResponse(), item)
	var rl *llm.ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestLLMEvaluator_InEngine(t *testing.T) {
	mock := llm.NewMockProvider() // empty queue: every call fails
	engine := newTestEngine(NewLLMEvaluator(mock, DefaultLLMEvaluatorConfig()))

	s, err := engine.Score(context.Background(), testItem(), fullResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Breakdown[1].Pending {
		t.Errorf("provider outage should leave the criterion pending: %+v", s.Breakdown[1])
	}

	mock.AddResponse(llm.MockResponse{Content: json.RawMessage(`{"points": 4, "narrative": "Partial."}`)})
	s, _ = engine.Score(context.Background(), testItem(), fullResponse())
	if s.Breakdown[1].Earned != 4 || s.Breakdown[1].Pending {
		t.Errorf("heuristic line = %+v", s.Breakdown[1])
	}
}

func TestAnswerText_FallsBackToAllAnswers(t *testing.T) {
	resp := &assessment.Response{Answers: map[string]any{
		"b": []any{"one", "two"},
		"a": map[string]any{"k": "v"},
	}}
	got := answerText(resp, "missing", 0)
	if !strings.HasPrefix(got, "[a]") || !strings.Contains(got, "- two") {
		t.Errorf("answerText = %q", got)
	}
	if got := answerText(nil, "x", 0); got != "(no answer)" {
		t.Errorf("answerText(nil) = %q", got)
	}
	if got := truncate("héllo", 2); got != "h\n(truncated)" {
		t.Errorf("truncate = %q", got)
	}
}
