package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/llm"
)

const evaluatorSystemPrompt = `You are an EBIOS Risk Manager instructor grading a trainee's answer.

Rules:
- Grade only the criterion you are given, against the linked requirement.
- Award between 0 and the maximum points. Partial credit is expected.
- Judge methodological correctness, precision and use of EBIOS RM concepts.
- Keep the narrative to two or three sentences addressed to the trainee.
- Do not reveal the ideal answer; point at what is missing instead.`

// EvaluationSchema defines the JSON schema for criterion grading responses.
var EvaluationSchema = &llm.Schema{
	Name:        "criterion-evaluation",
	Description: "Points awarded for one rubric criterion with a short justification",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"points": map[string]any{
				"type":        "number",
				"minimum":     0,
				"description": "Points awarded, between 0 and the criterion maximum",
			},
			"narrative": map[string]any{
				"type":        "string",
				"description": "Two or three sentences of feedback for the trainee",
			},
		},
		"required":             []any{"points", "narrative"},
		"additionalProperties": false,
	},
}

// LLMEvaluatorConfig controls prompt construction.
type LLMEvaluatorConfig struct {
	MaxTokens   int
	Temperature float64

	// MaxAnswerChars truncates long answers in the prompt.
	MaxAnswerChars int
}

// DefaultLLMEvaluatorConfig returns sensible defaults.
func DefaultLLMEvaluatorConfig() LLMEvaluatorConfig {
	return LLMEvaluatorConfig{
		MaxTokens:      512,
		Temperature:    0,
		MaxAnswerChars: 4000,
	}
}

// LLMEvaluator implements Evaluator using an LLM provider.
type LLMEvaluator struct {
	provider llm.Provider
	config   LLMEvaluatorConfig
}

// NewLLMEvaluator creates an LLMEvaluator.
func NewLLMEvaluator(provider llm.Provider, cfg LLMEvaluatorConfig) *LLMEvaluator {
	return &LLMEvaluator{provider: provider, config: cfg}
}

// Evaluate implements Evaluator. Points are clamped to the criterion maximum.
func (e *LLMEvaluator) Evaluate(ctx context.Context, c assessment.Criterion, resp *assessment.Response, item *assessment.Item) (Evaluation, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeCriterionEvaluation)

	req := llm.Request{
		System: evaluatorSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildEvaluationMessage(c, resp, item, e.config.MaxAnswerChars)},
		},
		Schema:      EvaluationSchema,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
	}

	out, err := e.provider.Generate(ctx, req)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate criterion %s: %w", c.ID, err)
	}

	var ev Evaluation
	if err := json.Unmarshal(out.Content, &ev); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation for criterion %s: %w", c.ID, err)
	}
	ev.Points = min(max(ev.Points, 0), c.Points)
	return ev, nil
}

func buildEvaluationMessage(c assessment.Criterion, resp *assessment.Response, item *assessment.Item, maxChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Exercise: %s\n", item.Title)
	fmt.Fprintf(&b, "Module: %s\n", item.ModuleID)
	fmt.Fprintf(&b, "Difficulty: %s\n", item.Difficulty)
	if item.Scenario.Description != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", strings.TrimSpace(item.Scenario.Description))
	}
	if len(item.Scenario.Regulations) > 0 {
		fmt.Fprintf(&b, "Regulations: %s\n", strings.Join(item.Scenario.Regulations, ", "))
	}

	b.WriteString("\nCriterion:\n")
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	fmt.Fprintf(&b, "Maximum points: %g\n", c.Points)
	if len(c.Keywords) > 0 {
		fmt.Fprintf(&b, "Expected concepts: %s\n", strings.Join(c.Keywords, ", "))
	}

	if r, ok := item.Requirement(c.RequirementID); ok {
		b.WriteString("\nRequirement:\n")
		fmt.Fprintf(&b, "%s: %s\n", r.Title, r.Description)
	}

	b.WriteString("\nTrainee answer:\n")
	b.WriteString(answerText(resp, c.RequirementID, maxChars))
	return b.String()
}

// answerText renders the linked answer, or every answer when the linked one
// is missing, truncated to maxChars.
func answerText(resp *assessment.Response, requirementID string, maxChars int) string {
	if resp == nil || len(resp.Answers) == 0 {
		return "(no answer)"
	}
	var text string
	if v, ok := resp.Answers[requirementID]; ok && !assessment.IsEmpty(v) {
		text = render(v)
	} else {
		keys := make([]string, 0, len(resp.Answers))
		for k := range resp.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "[%s]\n%s\n", k, render(resp.Answers[k]))
		}
		text = b.String()
	}
	return strings.TrimSpace(truncate(text, maxChars))
}

func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return "- " + strings.Join(t, "\n- ")
	case []any:
		var b strings.Builder
		for _, e := range t {
			fmt.Fprintf(&b, "- %s\n", render(e))
		}
		return b.String()
	default:
		raw, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n(truncated)"
}
