package scoring

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Evaluation is the outcome of a heuristic criterion evaluation.
type Evaluation struct {
	Points    float64 `json:"points"`
	Narrative string  `json:"narrative"`
}

// Evaluator scores heuristic criteria. Implementations must honor context
// cancellation and be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, criterion assessment.Criterion, resp *assessment.Response, item *assessment.Item) (Evaluation, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, criterion assessment.Criterion, resp *assessment.Response, item *assessment.Item) (Evaluation, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, criterion assessment.Criterion, resp *assessment.Response, item *assessment.Item) (Evaluation, error) {
	return f(ctx, criterion, resp, item)
}

// depthChars is the answer length that earns full credit when a criterion
// has no keywords.
const depthChars = 400

// KeywordEvaluator is a deterministic evaluator that credits keyword
// coverage of the linked requirement's answer.
type KeywordEvaluator struct{}

// Evaluate implements Evaluator.
func (KeywordEvaluator) Evaluate(_ context.Context, c assessment.Criterion, resp *assessment.Response, _ *assessment.Item) (Evaluation, error) {
	var value any
	if resp != nil {
		value = resp.Answers[c.RequirementID]
	}
	text := assessment.ValueText(value)
	if strings.TrimSpace(text) == "" {
		return Evaluation{Points: 0, Narrative: "No answer to evaluate."}, nil
	}

	if len(c.Keywords) == 0 {
		depth := min(1, float64(utf8.RuneCountInString(text))/depthChars)
		fraction := 0.5 + 0.5*depth
		return Evaluation{
			Points:    c.Points * fraction,
			Narrative: fmt.Sprintf("Answer depth %.0f%%.", depth*100),
		}, nil
	}

	var matched, missing []string
	for _, k := range c.Keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			matched = append(matched, k)
		} else {
			missing = append(missing, k)
		}
	}
	fraction := float64(len(matched)) / float64(len(c.Keywords))

	var b strings.Builder
	fmt.Fprintf(&b, "Covers %d of %d key concepts.", len(matched), len(c.Keywords))
	if len(missing) > 0 {
		fmt.Fprintf(&b, " Not addressed: %s.", strings.Join(missing, ", "))
	}
	return Evaluation{Points: c.Points * fraction, Narrative: b.String()}, nil
}
