package scoring

import (
	"errors"
	"fmt"
)

// ErrEvaluatorTimeout indicates a heuristic evaluation exceeded its time bound.
var ErrEvaluatorTimeout = errors.New("evaluator timed out")

// RubricConfigurationError indicates a malformed rubric, such as an unknown
// evaluation method. The item cannot be scored.
type RubricConfigurationError struct {
	ItemID      string
	CriterionID string
	Method      string
	Reason      string
}

func (e *RubricConfigurationError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("rubric of item %s: criterion %s has unknown method %q", e.ItemID, e.CriterionID, e.Method)
	}
	return fmt.Sprintf("rubric of item %s: %s", e.ItemID, e.Reason)
}
