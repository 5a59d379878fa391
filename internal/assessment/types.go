package assessment

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the ordered difficulty ladder used by items and user levels.
type Difficulty int

const (
	Intermediate Difficulty = iota + 1
	Advanced
	Expert
	Master
)

var difficultyNames = map[Difficulty]string{
	Intermediate: "intermediate",
	Advanced:     "advanced",
	Expert:       "expert",
	Master:       "master",
}

func (d Difficulty) String() string {
	if n, ok := difficultyNames[d]; ok {
		return n
	}
	return fmt.Sprintf("difficulty(%d)", int(d))
}

// Valid reports whether d is one of the four known levels.
func (d Difficulty) Valid() bool {
	_, ok := difficultyNames[d]
	return ok
}

// Lower returns the next easier level, bottoming out at Intermediate.
func (d Difficulty) Lower() Difficulty {
	if d <= Intermediate {
		return Intermediate
	}
	return d - 1
}

// Higher returns the next harder level, capped at Master.
func (d Difficulty) Higher() Difficulty {
	if d >= Master {
		return Master
	}
	return d + 1
}

// ParseDifficulty parses a level name, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, n := range difficultyNames {
		if n == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty %q", s)
}

// MarshalText encodes the level name. The zero value encodes as "".
func (d Difficulty) MarshalText() ([]byte, error) {
	if d == 0 {
		return []byte{}, nil
	}
	if !d.Valid() {
		return nil, fmt.Errorf("invalid difficulty %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	parsed, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ItemType classifies the kind of work an item asks for.
type ItemType string

const (
	TypeScenarioAnalysis        ItemType = "scenario_analysis"
	TypeThreatModeling          ItemType = "threat_modeling"
	TypeQuantitativeCalculation ItemType = "quantitative_calculation"
	TypeDecisionMatrix          ItemType = "decision_matrix"
	TypeSimulation              ItemType = "simulation"
	TypeComplianceCheck         ItemType = "compliance_check"
	TypeTechnicalAssessment     ItemType = "technical_assessment"
)

// ItemTypes lists every supported item type.
var ItemTypes = []ItemType{
	TypeScenarioAnalysis,
	TypeThreatModeling,
	TypeQuantitativeCalculation,
	TypeDecisionMatrix,
	TypeSimulation,
	TypeComplianceCheck,
	TypeTechnicalAssessment,
}

// Method is how a rubric criterion is scored.
type Method string

const (
	MethodAutomatic      Method = "automatic"
	MethodHeuristic      Method = "heuristic"
	MethodDeferredReview Method = "deferred_review"
)

// NormalizeMethod maps legacy catalog names onto the canonical methods.
// Unknown names are returned unchanged so that scoring can reject them.
func NormalizeMethod(s string) Method {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic":
		return MethodAutomatic
	case "heuristic", "ai_assisted":
		return MethodHeuristic
	case "deferred_review", "deferred-review", "expert_review":
		return MethodDeferredReview
	}
	return Method(s)
}

// MaxHints caps the number of hints carried by one item.
const MaxHints = 3

// Item is one scenario-based assessment question instantiated for a session.
// Items are never mutated after generation.
type Item struct {
	ID         string     `json:"id"`
	ModuleID   string     `json:"module_id"`
	Type       ItemType   `json:"type"`
	Difficulty Difficulty `json:"difficulty"`
	Category   string     `json:"category"`
	Title      string     `json:"title"`

	Scenario     Scenario      `json:"scenario"`
	Requirements []Requirement `json:"requirements"`
	Rubric       Rubric        `json:"rubric"`
	Hints        []Hint        `json:"hints"`
	Rules        []Rule        `json:"rules"`

	// TimeBudget is the expected completion time in minutes.
	TimeBudget int `json:"time_budget"`

	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
}

// MaxPoints is the sum of all criterion points.
func (it *Item) MaxPoints() float64 {
	var total float64
	for _, c := range it.Rubric.Criteria {
		total += c.Points
	}
	return total
}

// Requirement returns the requirement with the given id.
func (it *Item) Requirement(id string) (Requirement, bool) {
	for _, r := range it.Requirements {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}

// HintCost returns the deduction for the given hint level.
func (it *Item) HintCost(level int) (float64, bool) {
	for _, h := range it.Hints {
		if h.Level == level {
			return h.Deduction, true
		}
	}
	return 0, false
}

// Scenario is the situational context the user works from.
type Scenario struct {
	Description  string         `json:"description"`
	Context      map[string]any `json:"context,omitempty"`
	Stakeholders []string       `json:"stakeholders,omitempty"`
	Constraints  []string       `json:"constraints,omitempty"`
	Regulations  []string       `json:"regulations,omitempty"`
	Threats      []string       `json:"threats,omitempty"`
	Timeline     string         `json:"timeline,omitempty"`
}

// Requirement is one deliverable the response must address.
type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Weight is the relative importance in [0,1]. Weights of one item sum to 1.
	Weight float64 `json:"weight"`

	Deliverable string `json:"deliverable,omitempty"`
}

// Rubric is the ordered scoring scheme of an item.
type Rubric struct {
	Criteria []Criterion  `json:"criteria"`
	Bonus    []Adjustment `json:"bonus,omitempty"`
	Penalty  []Adjustment `json:"penalty,omitempty"`
}

// Criterion is one line of the rubric.
type Criterion struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	RequirementID string  `json:"requirement_id"`
	Points        float64 `json:"points"`
	Method        Method  `json:"method"`

	// Check drives automatic criteria.
	Check *Check `json:"check,omitempty"`

	// Keywords guide heuristic evaluators.
	Keywords []string `json:"keywords,omitempty"`
}

// CheckKind enumerates the automatic checks.
type CheckKind string

const (
	CheckNonEmpty       CheckKind = "non_empty"
	CheckMinItems       CheckKind = "min_items"
	CheckRequiredFields CheckKind = "required_fields"
	CheckContainsAny    CheckKind = "contains_any"
)

// Check is a deterministic property of an answer.
type Check struct {
	Kind   CheckKind `json:"kind"`
	Min    int       `json:"min,omitempty"`
	Fields []string  `json:"fields,omitempty"`
	Terms  []string  `json:"terms,omitempty"`
}

// Adjustment is a bonus or penalty applied on top of the criteria.
type Adjustment struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	RequirementID string  `json:"requirement_id"`
	Points        float64 `json:"points"`
	Check         Check   `json:"check"`
}

// Hint is a progressively more revealing clue.
type Hint struct {
	Level     int     `json:"level"`
	Text      string  `json:"text"`
	Deduction float64 `json:"deduction"`
}

// Severity of a validation finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMinor    Severity = "minor"
)

// Rule is a field-level validation rule evaluated against a response.
type Rule struct {
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Response is a user's answer to one item.
type Response struct {
	ItemID string `json:"item_id"`
	UserID string `json:"user_id"`

	// Answers is keyed by requirement id. Values are strings, string lists
	// or objects decoded from JSON.
	Answers map[string]any `json:"answers"`

	Elapsed     time.Duration `json:"elapsed"`
	HintsUsed   []int         `json:"hints_used,omitempty"`
	Partial     bool          `json:"partial,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Finding is one validation error or warning.
type Finding struct {
	Field      string   `json:"field"`
	Rule       string   `json:"rule"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Validation is the outcome of checking a response against an item's rules.
type Validation struct {
	Valid        bool      `json:"valid"`
	Errors       []Finding `json:"errors,omitempty"`
	Warnings     []Finding `json:"warnings,omitempty"`
	Completeness float64   `json:"completeness"`
	Quality      float64   `json:"quality"`
}

// CriterionScore is one line of a score breakdown.
type CriterionScore struct {
	CriterionID string  `json:"criterion_id"`
	Name        string  `json:"name"`
	Earned      float64 `json:"earned"`
	Max         float64 `json:"max"`
	Method      Method  `json:"method"`
	Narrative   string  `json:"narrative"`

	// Pending marks criteria awaiting human or degraded heuristic review.
	Pending bool `json:"pending,omitempty"`
	// Reviewer is set once an expert has replaced a pending line.
	Reviewer string `json:"reviewer,omitempty"`
}

// Score is the result of scoring one response.
type Score struct {
	ItemID string `json:"item_id"`

	// RawEarned is the breakdown sum before hint deductions.
	RawEarned     float64 `json:"raw_earned"`
	HintDeduction float64 `json:"hint_deduction"`

	// Earned is RawEarned minus hint deductions, never below zero.
	Earned     float64          `json:"earned"`
	Max        float64          `json:"max"`
	Percentage int              `json:"percentage"`
	Breakdown  []CriterionScore `json:"breakdown"`
	Validation Validation       `json:"validation"`
	HasPending bool             `json:"has_pending,omitempty"`
}

// ValueText flattens an answer value into a single lowercase string.
func ValueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(t)
	case []string:
		return strings.ToLower(strings.Join(t, "\n"))
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, ValueText(e))
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, ValueText(e))
		}
		return strings.Join(parts, "\n")
	default:
		return strings.ToLower(fmt.Sprint(t))
	}
}

// ValueItems returns the list entries of an answer. A string answer counts
// its non-empty lines.
func ValueItems(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, line := range strings.Split(t, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		var out []string
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, e := range t {
			if s := strings.TrimSpace(ValueText(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		var out []string
		for _, e := range t {
			if s := strings.TrimSpace(ValueText(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

// IsEmpty reports whether an answer carries no content.
func IsEmpty(v any) bool {
	return strings.TrimSpace(ValueText(v)) == ""
}
