package scoring

import (
	"fmt"
	"strings"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// EvaluateCheck runs a deterministic check against an answer value and
// returns the credited fraction in [0,1] with a short narrative.
func EvaluateCheck(c assessment.Check, value any) (float64, string) {
	switch c.Kind {
	case assessment.CheckNonEmpty:
		if assessment.IsEmpty(value) {
			return 0, "No answer provided."
		}
		return 1, "Answer provided."

	case assessment.CheckMinItems:
		want := max(c.Min, 1)
		got := len(assessment.ValueItems(value))
		if got >= want {
			return 1, fmt.Sprintf("%d entries listed (%d expected).", got, want)
		}
		return float64(got) / float64(want), fmt.Sprintf("%d of %d expected entries listed.", got, want)

	case assessment.CheckRequiredFields:
		if len(c.Fields) == 0 {
			return 1, "No fields required."
		}
		var missing []string
		for _, f := range c.Fields {
			if !hasField(value, f) {
				missing = append(missing, f)
			}
		}
		present := len(c.Fields) - len(missing)
		if len(missing) == 0 {
			return 1, "All expected elements are present."
		}
		return float64(present) / float64(len(c.Fields)),
			fmt.Sprintf("Missing elements: %s.", strings.Join(missing, ", "))

	case assessment.CheckContainsAny:
		want := max(c.Min, 1)
		text := assessment.ValueText(value)
		var matched []string
		for _, term := range c.Terms {
			if strings.Contains(text, strings.ToLower(term)) {
				matched = append(matched, term)
			}
		}
		if len(matched) >= want {
			return 1, fmt.Sprintf("References found: %s.", strings.Join(matched, ", "))
		}
		if len(matched) == 0 {
			return 0, fmt.Sprintf("None of the expected references found (%s).", strings.Join(c.Terms, ", "))
		}
		return float64(len(matched)) / float64(want),
			fmt.Sprintf("%d of %d expected references found: %s.", len(matched), want, strings.Join(matched, ", "))
	}
	return 0, fmt.Sprintf("Unsupported check %q.", c.Kind)
}

// hasField reports whether an answer addresses a named element. Object
// answers must carry a non-empty key; text answers must mention it.
func hasField(value any, field string) bool {
	if m, ok := value.(map[string]any); ok {
		return !assessment.IsEmpty(m[field])
	}
	text := assessment.ValueText(value)
	return strings.Contains(text, strings.ToLower(field)) ||
		strings.Contains(text, strings.ReplaceAll(strings.ToLower(field), "_", " "))
}
