// Package feedback composes persona-driven feedback from scores.
package feedback

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/profile"
)

// Feedback is the composed feedback for one scored response. It is never
// mutated after creation.
type Feedback struct {
	ID            string        `json:"id"`
	ItemID        string        `json:"item_id"`
	UserID        string        `json:"user_id"`
	Persona       Persona       `json:"persona"`
	Content       Content       `json:"content"`
	Effectiveness Effectiveness `json:"effectiveness"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Content is the structured body of a feedback.
type Content struct {
	Immediate      Immediate      `json:"immediate"`
	Detailed       Detailed       `json:"detailed"`
	Methodological Methodological `json:"methodological"`
	Motivational   Motivational   `json:"motivational"`
	NextSteps      NextSteps      `json:"next_steps"`
}

type Immediate struct {
	Summary       string   `json:"summary"`
	Highlights    []string `json:"highlights,omitempty"`
	Concerns      []string `json:"concerns,omitempty"`
	QuickWins     []string `json:"quick_wins,omitempty"`
	UrgentActions []string `json:"urgent_actions,omitempty"`
}

type Strength struct {
	Area        string `json:"area"`
	Description string `json:"description"`
}

type Improvement struct {
	Area           string     `json:"area"`
	Gap            string     `json:"gap"`
	Recommendation string     `json:"recommendation"`
	Priority       Priority   `json:"priority"`
	Resources      []Resource `json:"resources,omitempty"`
}

// Priority of an improvement or step.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Detailed struct {
	Strengths    []Strength    `json:"strengths,omitempty"`
	Improvements []Improvement `json:"improvements,omitempty"`

	// Gaps lists requirements left unanswered.
	Gaps []string `json:"gaps,omitempty"`
}

// ComplianceStatus of a methodological check.
type ComplianceStatus string

const (
	Compliant    ComplianceStatus = "compliant"
	Partial      ComplianceStatus = "partial"
	NonCompliant ComplianceStatus = "non_compliant"
)

type ComplianceNote struct {
	Requirement string           `json:"requirement"`
	Status      ComplianceStatus `json:"status"`
	Explanation string           `json:"explanation"`
}

type Methodological struct {
	Phase         string           `json:"phase"`
	Notes         []string         `json:"notes"`
	Compliance    []ComplianceNote `json:"compliance"`
	BestPractices []string         `json:"best_practices"`
	Pitfalls      []string         `json:"pitfalls"`
}

type Motivational struct {
	Tone    MotivationTone `json:"tone"`
	Message string         `json:"message"`
}

type Step struct {
	Action   string   `json:"action"`
	Priority Priority `json:"priority"`
}

type NextSteps struct {
	Immediate []Step `json:"immediate,omitempty"`
	ShortTerm []Step `json:"short_term,omitempty"`
	LongTerm  []Step `json:"long_term,omitempty"`
}

// Thresholds on a criterion's earned/max ratio.
const (
	strengthRatio    = 0.8
	improvementRatio = 0.5
)

// Composer builds feedback. It holds no per-call state.
type Composer struct {
	rules []PersonaRule
	now   func() time.Time
	newID func() string
}

// Option customizes a Composer.
type Option func(*Composer)

// WithRules replaces the persona selection table.
func WithRules(rules []PersonaRule) Option {
	return func(c *Composer) { c.rules = rules }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithIDFunc overrides feedback id generation.
func WithIDFunc(f func() string) Option {
	return func(c *Composer) { c.newID = f }
}

// NewComposer creates a Composer with the default persona rules.
func NewComposer(opts ...Option) *Composer {
	c := &Composer{
		rules: DefaultPersonaRules,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose builds feedback for a scored response. The persona depends only
// on the module, the user level and the score percentage.
func (c *Composer) Compose(item *assessment.Item, resp *assessment.Response, score *assessment.Score, p profile.Profile) *Feedback {
	persona := SelectPersona(c.rules, Selection{
		ModuleID:   item.ModuleID,
		Level:      profile.LevelFor(p),
		Percentage: score.Percentage,
	})
	g := guidanceFor(item.ModuleID)

	content := Content{
		Immediate:      immediate(persona.Style, score),
		Detailed:       detailed(persona.Style, item, resp, score, g),
		Methodological: methodological(g, score),
	}
	content.Motivational.Tone, content.Motivational.Message = motivation(persona.Style, score.Percentage)
	content.NextSteps = nextSteps(content, g, score.Percentage)

	userID := p.UserID
	if resp != nil && resp.UserID != "" {
		userID = resp.UserID
	}
	return &Feedback{
		ID:            c.newID(),
		ItemID:        item.ID,
		UserID:        userID,
		Persona:       persona,
		Content:       content,
		Effectiveness: Predict(content, persona, item.ModuleID, score),
		CreatedAt:     c.now(),
	}
}

func ratio(line assessment.CriterionScore) float64 {
	if line.Max <= 0 {
		return 0
	}
	return line.Earned / line.Max
}

func immediate(style Style, score *assessment.Score) Immediate {
	im := Immediate{Summary: summary(style, score.Percentage)}
	for _, line := range score.Breakdown {
		switch {
		case line.Max <= 0:
			// Bonus and penalty lines.
			if line.Earned > 0 {
				im.Highlights = append(im.Highlights, fmt.Sprintf("Bonus: %s", line.Name))
			} else if line.Earned < 0 {
				im.Concerns = append(im.Concerns, fmt.Sprintf("Penalty: %s", line.Name))
			}
		case line.Pending:
			im.Concerns = append(im.Concerns, fmt.Sprintf("%s is awaiting expert review", line.Name))
		case ratio(line) >= strengthRatio:
			im.Highlights = append(im.Highlights, line.Name)
		case ratio(line) < improvementRatio:
			im.Concerns = append(im.Concerns, fmt.Sprintf("%s: %s", line.Name, line.Narrative))
		}
	}
	for _, e := range score.Validation.Errors {
		im.Concerns = append(im.Concerns, e.Message)
		if e.Severity == assessment.SeverityCritical && e.Suggestion != "" {
			im.UrgentActions = append(im.UrgentActions, e.Suggestion)
		}
	}
	for _, w := range score.Validation.Warnings {
		if w.Suggestion != "" {
			im.QuickWins = append(im.QuickWins, w.Suggestion)
		}
	}
	if score.HintDeduction > 0 {
		im.QuickWins = append(im.QuickWins,
			fmt.Sprintf("Hints cost %.0f points; try the next exercise with fewer hints.", score.HintDeduction))
	}
	return im
}

func detailed(style Style, item *assessment.Item, resp *assessment.Response, score *assessment.Score, g guidance) Detailed {
	var d Detailed
	verb := improvementVerb(style)
	for _, line := range score.Breakdown {
		if line.Max <= 0 || line.Pending {
			continue
		}
		r := ratio(line)
		switch {
		case r >= strengthRatio:
			d.Strengths = append(d.Strengths, Strength{Area: line.Name, Description: line.Narrative})
		default:
			pr := PriorityMedium
			if r < improvementRatio {
				pr = PriorityHigh
			}
			d.Improvements = append(d.Improvements, Improvement{
				Area:           line.Name,
				Gap:            fmt.Sprintf("%.1f of %.1f points", line.Earned, line.Max),
				Recommendation: fmt.Sprintf("%s %s. %s", verb, lowerFirst(line.Name), line.Narrative),
				Priority:       pr,
				Resources:      g.resources,
			})
		}
	}

	var answers map[string]any
	if resp != nil {
		answers = resp.Answers
	}
	for _, req := range item.Requirements {
		if assessment.IsEmpty(answers[req.ID]) {
			title := req.Title
			if title == "" {
				title = req.ID
			}
			d.Gaps = append(d.Gaps, title)
		}
	}
	return d
}

func methodological(g guidance, score *assessment.Score) Methodological {
	m := Methodological{
		Phase:         g.phase,
		Notes:         g.notes,
		BestPractices: g.bestPractices,
		Pitfalls:      g.pitfalls,
	}

	terminology := ComplianceNote{Requirement: "EBIOS RM terminology", Status: Compliant, Explanation: "The answer uses the method's vocabulary."}
	for _, f := range append(append([]assessment.Finding{}, score.Validation.Errors...), score.Validation.Warnings...) {
		if f.Rule == "ebios_compliance" {
			terminology.Status = NonCompliant
			terminology.Explanation = f.Message
		}
	}
	m.Compliance = append(m.Compliance, terminology)

	deliverables := ComplianceNote{Requirement: "Expected deliverables", Status: Compliant, Explanation: "Every requirement is addressed."}
	switch c := score.Validation.Completeness; {
	case c == 0:
		deliverables.Status = NonCompliant
		deliverables.Explanation = "No requirement is addressed."
	case c < 1:
		deliverables.Status = Partial
		deliverables.Explanation = fmt.Sprintf("%.0f%% of the requirements are addressed.", c*100)
	}
	m.Compliance = append(m.Compliance, deliverables)
	return m
}

func nextSteps(c Content, g guidance, percentage int) NextSteps {
	var ns NextSteps
	for _, a := range c.Immediate.UrgentActions {
		ns.Immediate = append(ns.Immediate, Step{Action: a, Priority: PriorityHigh})
	}
	for _, imp := range c.Detailed.Improvements {
		if imp.Priority == PriorityHigh {
			ns.Immediate = append(ns.Immediate, Step{Action: "Rework " + lowerFirst(imp.Area), Priority: PriorityHigh})
		} else {
			ns.ShortTerm = append(ns.ShortTerm, Step{Action: "Refine " + lowerFirst(imp.Area), Priority: PriorityMedium})
		}
	}
	for _, r := range g.resources {
		ns.ShortTerm = append(ns.ShortTerm, Step{Action: "Study: " + r.Title, Priority: PriorityLow})
	}
	if percentage >= 80 {
		ns.LongTerm = append(ns.LongTerm, Step{Action: "Attempt the next difficulty level", Priority: PriorityMedium})
	} else {
		ns.LongTerm = append(ns.LongTerm, Step{Action: "Repeat this workshop until scores stay above 80%", Priority: PriorityMedium})
	}
	ns.LongTerm = append(ns.LongTerm, Step{Action: "Apply " + g.phase + " on a real study", Priority: PriorityLow})
	return ns
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'A' && r[0] <= 'Z' {
		r[0] += 'a' - 'A'
	}
	return string(r)
}
