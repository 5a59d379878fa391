package itemgen

import (
	"fmt"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Validator checks an instantiated item before it is handed to a session.
// Implementations should be stateless and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier, e.g. "structural" or "weights".
	Name() string

	// Validate returns nil if the item passes.
	Validate(item *assessment.Item) *ValidationError
}

// ValidationError describes why an item was rejected.
type ValidationError struct {
	Validator string
	ItemID    string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q rejected item %s: %s", e.Validator, e.ItemID, e.Message)
}

// StructuralValidator checks identifiers, rubric presence and time budget.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(item *assessment.Item) *ValidationError {
	fail := func(msg string) *ValidationError {
		return &ValidationError{Validator: v.Name(), ItemID: item.ID, Message: msg}
	}
	switch {
	case item.ID == "":
		return fail("id is empty")
	case item.Title == "":
		return fail("title is empty")
	case !item.Difficulty.Valid():
		return fail("difficulty is not set")
	case len(item.Requirements) == 0:
		return fail("no requirements")
	case len(item.Rubric.Criteria) == 0:
		return fail("rubric has no criteria")
	case item.TimeBudget <= 0:
		return fail("time budget must be positive")
	}
	for _, c := range item.Rubric.Criteria {
		if c.Points <= 0 {
			return fail(fmt.Sprintf("criterion %s has non-positive points", c.ID))
		}
	}
	return nil
}

// WeightValidator checks that requirement weights are in [0,1] and sum to 1.
type WeightValidator struct{}

func (v *WeightValidator) Name() string { return "weights" }

func (v *WeightValidator) Validate(item *assessment.Item) *ValidationError {
	var sum float64
	for _, r := range item.Requirements {
		if r.Weight < 0 || r.Weight > 1 {
			return &ValidationError{
				Validator: v.Name(),
				ItemID:    item.ID,
				Message:   fmt.Sprintf("requirement %s weight %.3f outside [0,1]", r.ID, r.Weight),
			}
		}
		sum += r.Weight
	}
	if sum < 1-weightTolerance || sum > 1+weightTolerance {
		return &ValidationError{
			Validator: v.Name(),
			ItemID:    item.ID,
			Message:   fmt.Sprintf("requirement weights sum to %.3f", sum),
		}
	}
	return nil
}

const weightTolerance = 0.001

// HintValidator checks the hint cap, ordering and deductions.
type HintValidator struct{}

func (v *HintValidator) Name() string { return "hints" }

func (v *HintValidator) Validate(item *assessment.Item) *ValidationError {
	if len(item.Hints) > assessment.MaxHints {
		return &ValidationError{
			Validator: v.Name(),
			ItemID:    item.ID,
			Message:   fmt.Sprintf("%d hints exceeds the cap of %d", len(item.Hints), assessment.MaxHints),
		}
	}
	prev := 0
	for _, h := range item.Hints {
		if h.Level <= prev {
			return &ValidationError{Validator: v.Name(), ItemID: item.ID, Message: "hint levels must be strictly increasing"}
		}
		if h.Deduction < 0 {
			return &ValidationError{Validator: v.Name(), ItemID: item.ID, Message: fmt.Sprintf("hint %d has a negative deduction", h.Level)}
		}
		prev = h.Level
	}
	return nil
}

// ReferenceValidator checks that criteria point at existing requirements.
// Method problems, such as an automatic criterion without a check, are left
// to the scoring engine so they fail loudly on use.
type ReferenceValidator struct{}

func (v *ReferenceValidator) Name() string { return "references" }

func (v *ReferenceValidator) Validate(item *assessment.Item) *ValidationError {
	for _, c := range item.Rubric.Criteria {
		if _, ok := item.Requirement(c.RequirementID); !ok {
			return &ValidationError{
				Validator: v.Name(),
				ItemID:    item.ID,
				Message:   fmt.Sprintf("criterion %s references unknown requirement %q", c.ID, c.RequirementID),
			}
		}
	}
	return nil
}
