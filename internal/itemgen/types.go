package itemgen

import (
	"fmt"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/profile"
)

// Request describes what items a session needs.
type Request struct {
	ModuleID string

	// Difficulty is the requested level. Zero means "use the user's level".
	Difficulty assessment.Difficulty

	// Count is the number of items wanted. The result may hold fewer.
	Count int

	// FocusTags restricts selection to templates sharing at least one tag.
	FocusTags []string

	// ExcludedTopics removes templates carrying any of these tags.
	ExcludedTopics []string

	// ExcludeTemplates removes templates by id (used when regenerating a
	// slot so the session does not see the same template twice).
	ExcludeTemplates []string

	// TimeBudget is the total time available in minutes. Zero means unbounded.
	TimeBudget int

	Profile profile.Profile
}

// Adaptation is a note describing how generation was tailored to the user.
type Adaptation string

const (
	AdaptComplexityIncreased   Adaptation = "complexity_increased"
	AdaptEdgeCasesIncluded     Adaptation = "edge_cases_included"
	AdaptGuidanceEnhanced      Adaptation = "guidance_enhanced"
	AdaptExamplesAdded         Adaptation = "examples_added"
	AdaptSimplifiedRequirement Adaptation = "simplified_requirements"
	AdaptFocusedScope          Adaptation = "focused_scope"
	AdaptHealthcareSpecifics   Adaptation = "healthcare_specifics"
	AdaptRegulatoryFocus       Adaptation = "regulatory_focus"
)

// DiagnosticCode classifies a degraded generation result.
type DiagnosticCode string

const (
	// CodeGenerationEmpty means no template matched the request.
	CodeGenerationEmpty DiagnosticCode = "generation_empty"

	// CodeInsufficientTemplates means fewer items than requested were produced.
	CodeInsufficientTemplates DiagnosticCode = "insufficient_templates"

	// CodeSourceUnavailable means the template source failed or timed out.
	CodeSourceUnavailable DiagnosticCode = "source_unavailable"
)

// Diagnostic explains why a result is empty or short. It is informational,
// never an error.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Result is the output of a generation request.
type Result struct {
	Items       []assessment.Item     `json:"items"`
	Adaptations []Adaptation          `json:"adaptations"`

	// Level is the difficulty generated at: the requested one, or the
	// user's derived level when none was requested.
	Level   assessment.Difficulty `json:"level"`
	Context profile.Context       `json:"context"`

	// Diagnostic is set when the result is empty or smaller than requested.
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// Empty reports whether no items were produced.
func (r *Result) Empty() bool {
	return len(r.Items) == 0
}
