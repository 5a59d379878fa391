package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/abhisek/riskdrill/internal/assessment"
)

var (
	// ErrUnknownCriterion means the score has no line for the criterion.
	ErrUnknownCriterion = errors.New("unknown criterion")
	// ErrNotPending means the line was already scored.
	ErrNotPending = errors.New("criterion is not pending review")
	// ErrInvalidReview means the awarded points fall outside [0, max].
	ErrInvalidReview = errors.New("invalid review")
)

// Review is an expert verdict on one pending criterion.
type Review struct {
	CriterionID string
	Points      float64
	Narrative   string
	Reviewer    string
}

// ApplyReview replaces the pending line of r.CriterionID with the expert
// verdict and recomputes the totals. Hint deductions and adjustment lines
// are kept as scored.
func ApplyReview(score *assessment.Score, r Review) error {
	idx := -1
	for i, line := range score.Breakdown {
		if line.CriterionID == r.CriterionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("item %s: %w %q", score.ItemID, ErrUnknownCriterion, r.CriterionID)
	}
	line := &score.Breakdown[idx]
	if !line.Pending {
		return fmt.Errorf("item %s criterion %s: %w", score.ItemID, r.CriterionID, ErrNotPending)
	}
	if math.IsNaN(r.Points) || r.Points < 0 || r.Points > line.Max {
		return fmt.Errorf("%w: %v points for %s, allowed 0 to %v", ErrInvalidReview, r.Points, r.CriterionID, line.Max)
	}

	line.Earned = round2(r.Points)
	line.Pending = false
	line.Reviewer = r.Reviewer
	if r.Narrative != "" {
		line.Narrative = r.Narrative
	}
	retotal(score)
	return nil
}

// retotal recomputes the derived fields of a score from its breakdown.
func retotal(score *assessment.Score) {
	score.RawEarned = 0
	score.HasPending = false
	for _, line := range score.Breakdown {
		score.RawEarned += line.Earned
		if line.Pending {
			score.HasPending = true
		}
	}
	score.Earned = math.Max(0, score.RawEarned-score.HintDeduction)
	score.Percentage = Percentage(score.Earned, score.Max)
}
