// Package validate checks user responses against an item's field rules.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Quality weights.
const (
	weightCompleteness = 0.60
	weightErrors       = 0.25
	weightTime         = 0.15

	// maxCountedErrors is the error count at which the error term reaches zero.
	maxCountedErrors = 4

	// tooFastRatio is the elapsed/budget ratio under which a response is
	// treated as rushed.
	tooFastRatio = 0.10
)

// ValidationFailed is the error form of a failed validation, for callers
// that want to reject a submission outright.
type ValidationFailed struct {
	ItemID string
	Errors []assessment.Finding
}

func (e *ValidationFailed) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("validation failed for item %s", e.ItemID)
	}
	fields := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		fields = append(fields, f.Field+"/"+f.Rule)
	}
	return fmt.Sprintf("validation failed for item %s: %s", e.ItemID, strings.Join(fields, ", "))
}

// AsError returns a *ValidationFailed when v carries errors, nil otherwise.
func AsError(itemID string, v assessment.Validation) error {
	if v.Valid {
		return nil
	}
	return &ValidationFailed{ItemID: itemID, Errors: v.Errors}
}

// Validate applies the item's rules to a response. It never fails: missing
// or malformed answers become findings.
//
// Violations of "required" rules are errors and every other violation is a
// warning, whatever its severity. Rules that cannot be evaluated produce a
// minor warning.
func Validate(item *assessment.Item, resp *assessment.Response) assessment.Validation {
	var answers map[string]any
	var elapsed time.Duration
	if resp != nil {
		answers = resp.Answers
		elapsed = resp.Elapsed
	}

	v := assessment.Validation{}
	for _, rule := range item.Rules {
		out := check(rule, answers[rule.Field])
		if out.ok {
			continue
		}
		kind, _ := splitRule(rule.Rule)
		finding := assessment.Finding{
			Field:      rule.Field,
			Rule:       rule.Rule,
			Message:    out.message,
			Severity:   rule.Severity,
			Suggestion: out.suggestion,
		}
		if finding.Severity == "" {
			finding.Severity = assessment.SeverityMinor
		}
		if rule.Message != "" && !out.malformed {
			finding.Message = rule.Message
		}

		switch {
		case out.malformed:
			finding.Severity = assessment.SeverityMinor
			v.Warnings = append(v.Warnings, finding)
		case kind == KindRequired:
			v.Errors = append(v.Errors, finding)
		default:
			v.Warnings = append(v.Warnings, finding)
		}
	}

	v.Valid = len(v.Errors) == 0
	v.Completeness = Completeness(item, answers)
	v.Quality = Quality(v.Completeness, len(v.Errors), elapsed, item.TimeBudget)
	return v
}

// Completeness is the fraction of requirements with a non-empty answer.
func Completeness(item *assessment.Item, answers map[string]any) float64 {
	if len(item.Requirements) == 0 {
		return 0
	}
	answered := 0
	for _, r := range item.Requirements {
		if !assessment.IsEmpty(answers[r.ID]) {
			answered++
		}
	}
	return float64(answered) / float64(len(item.Requirements))
}

// Quality combines completeness, error count and time use into [0,1].
func Quality(completeness float64, errors int, elapsed time.Duration, budgetMinutes int) float64 {
	errorTerm := 1 - float64(min(errors, maxCountedErrors))/maxCountedErrors
	q := weightCompleteness*completeness + weightErrors*errorTerm + weightTime*TimeFactor(elapsed, budgetMinutes)
	return clamp01(q)
}

// TimeFactor scores time use: 1 within budget, decreasing with overrun,
// 0.5 when the response took under a tenth of the budget. Unknown elapsed
// time or budget yields 1.
func TimeFactor(elapsed time.Duration, budgetMinutes int) float64 {
	if elapsed <= 0 || budgetMinutes <= 0 {
		return 1
	}
	ratio := elapsed.Minutes() / float64(budgetMinutes)
	switch {
	case ratio < tooFastRatio:
		return 0.5
	case ratio <= 1:
		return 1
	default:
		return clamp01(1 - (ratio - 1))
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
