// Package scoring computes per-criterion and total scores for responses.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/validate"
)

// Scorer scores one response against one item.
type Scorer interface {
	Score(ctx context.Context, item *assessment.Item, resp *assessment.Response) (*assessment.Score, error)
}

// Engine implements Scorer with automatic checks, a pluggable heuristic
// evaluator and deferred-review placeholders.
type Engine struct {
	evaluator Evaluator
	config    Config
}

// NewEngine creates an Engine. A nil evaluator falls back to KeywordEvaluator.
func NewEngine(evaluator Evaluator, cfg Config) *Engine {
	if evaluator == nil {
		evaluator = KeywordEvaluator{}
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Engine{evaluator: evaluator, config: cfg}
}

// Score validates the response, evaluates every rubric criterion, applies
// bonus and penalty adjustments, then deducts consumed hints.
//
// The breakdown follows rubric order and its Earned values sum to RawEarned.
// A rubric with an unknown method is rejected with *RubricConfigurationError.
func (e *Engine) Score(ctx context.Context, item *assessment.Item, resp *assessment.Response) (*assessment.Score, error) {
	if err := checkRubric(item); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &assessment.Response{ItemID: item.ID}
	}

	score := &assessment.Score{
		ItemID:     item.ID,
		Max:        item.MaxPoints(),
		Validation: validate.Validate(item, resp),
	}

	breakdown := make([]assessment.CriterionScore, len(item.Rubric.Criteria))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Parallelism)

	for i, c := range item.Rubric.Criteria {
		switch c.Method {
		case assessment.MethodAutomatic:
			breakdown[i] = automatic(c, resp)
		case assessment.MethodDeferredReview:
			breakdown[i] = assessment.CriterionScore{
				CriterionID: c.ID,
				Name:        c.Name,
				Max:         c.Points,
				Method:      c.Method,
				Narrative:   "Expert review required.",
				Pending:     true,
			}
		case assessment.MethodHeuristic:
			g.Go(func() error {
				breakdown[i] = e.heuristic(gctx, c, resp, item)
				return nil
			})
		}
	}
	// Heuristic failures degrade to pending lines, so Wait never fails.
	_ = g.Wait()

	breakdown = append(breakdown, adjustments(item, resp)...)

	score.Breakdown = breakdown
	score.HintDeduction = HintDeduction(item, resp.HintsUsed)
	retotal(score)
	return score, nil
}

// checkRubric rejects rubrics that cannot be scored.
func checkRubric(item *assessment.Item) error {
	if len(item.Rubric.Criteria) == 0 || item.MaxPoints() <= 0 {
		return &RubricConfigurationError{ItemID: item.ID, Reason: "rubric has no positive points"}
	}
	for _, c := range item.Rubric.Criteria {
		switch c.Method {
		case assessment.MethodAutomatic:
			if c.Check == nil {
				return &RubricConfigurationError{ItemID: item.ID, CriterionID: c.ID, Reason: fmt.Sprintf("automatic criterion %s has no check", c.ID)}
			}
		case assessment.MethodHeuristic, assessment.MethodDeferredReview:
		default:
			return &RubricConfigurationError{ItemID: item.ID, CriterionID: c.ID, Method: string(c.Method)}
		}
	}
	return nil
}

func automatic(c assessment.Criterion, resp *assessment.Response) assessment.CriterionScore {
	fraction, narrative := EvaluateCheck(*c.Check, resp.Answers[c.RequirementID])
	return assessment.CriterionScore{
		CriterionID: c.ID,
		Name:        c.Name,
		Earned:      round2(c.Points * fraction),
		Max:         c.Points,
		Method:      c.Method,
		Narrative:   narrative,
	}
}

// heuristic calls the evaluator with a per-attempt timeout and retries with
// exponential backoff. A final failure yields a zero-point pending line.
func (e *Engine) heuristic(ctx context.Context, c assessment.Criterion, resp *assessment.Response, item *assessment.Item) assessment.CriterionScore {
	line := assessment.CriterionScore{
		CriterionID: c.ID,
		Name:        c.Name,
		Max:         c.Points,
		Method:      c.Method,
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.EvaluatorRetries; attempt++ {
		if attempt > 0 {
			wait := e.config.InitialBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}

		ev, err := e.evaluateOnce(ctx, c, resp, item)
		if err == nil {
			line.Earned = round2(math.Min(c.Points, math.Max(0, ev.Points)))
			line.Narrative = ev.Narrative
			return line
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	slog.Warn("heuristic evaluation degraded to pending",
		"item_id", item.ID, "criterion", c.ID, "error", lastErr)
	line.Pending = true
	if errors.Is(lastErr, ErrEvaluatorTimeout) {
		line.Narrative = "Automated evaluation timed out; pending review."
	} else {
		line.Narrative = "Automated evaluation unavailable; pending review."
	}
	return line
}

func (e *Engine) evaluateOnce(ctx context.Context, c assessment.Criterion, resp *assessment.Response, item *assessment.Item) (Evaluation, error) {
	actx, cancel := context.WithTimeout(ctx, e.config.EvaluatorTimeout)
	defer cancel()

	type result struct {
		ev  Evaluation
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := e.evaluator.Evaluate(actx, c, resp, item)
		done <- result{ev, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Evaluation{}, fmt.Errorf("%w: %v", ErrEvaluatorTimeout, r.err)
		}
		return r.ev, r.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return Evaluation{}, ctx.Err()
		}
		return Evaluation{}, fmt.Errorf("criterion %s: %w", c.ID, ErrEvaluatorTimeout)
	}
}

// adjustments returns breakdown lines for triggered bonus and penalty rules.
func adjustments(item *assessment.Item, resp *assessment.Response) []assessment.CriterionScore {
	var out []assessment.CriterionScore
	apply := func(list []assessment.Adjustment, sign float64, prefix string) {
		for _, a := range list {
			fraction, _ := EvaluateCheck(a.Check, resp.Answers[a.RequirementID])
			if fraction < 1 {
				continue
			}
			out = append(out, assessment.CriterionScore{
				CriterionID: prefix + a.ID,
				Name:        a.Description,
				Earned:      sign * a.Points,
				Method:      assessment.MethodAutomatic,
				Narrative:   a.Description,
			})
		}
	}
	apply(item.Rubric.Bonus, 1, "bonus:")
	apply(item.Rubric.Penalty, -1, "penalty:")
	return out
}

// HintDeduction sums the cost of consumed hint levels. Each level counts
// once; levels not offered by the item cost nothing.
func HintDeduction(item *assessment.Item, used []int) float64 {
	var total float64
	seen := make([]int, 0, len(used))
	for _, level := range used {
		if slices.Contains(seen, level) {
			continue
		}
		seen = append(seen, level)
		if cost, ok := item.HintCost(level); ok {
			total += cost
		}
	}
	return total
}

// Percentage returns round(100*earned/max), clamped to [0,100].
func Percentage(earned, maxPoints float64) int {
	if maxPoints <= 0 {
		return 0
	}
	p := int(math.Round(100 * earned / maxPoints))
	return min(max(p, 0), 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
