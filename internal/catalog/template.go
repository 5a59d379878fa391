package catalog

import (
	"maps"
	"slices"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Template is a versioned blueprint from which items are instantiated.
type Template struct {
	ID         string
	ModuleID   string
	Type       assessment.ItemType
	Difficulty assessment.Difficulty
	Category   string
	Title      string

	Scenario     assessment.Scenario
	Requirements []assessment.Requirement
	Rubric       assessment.Rubric
	Hints        []assessment.Hint
	Rules        []assessment.Rule

	// TimeBudget is the nominal completion time in minutes.
	TimeBudget int

	Metadata Metadata
}

// Metadata carries authoring and historical usage information.
type Metadata struct {
	// Version is a semantic version, e.g. "v1.2.0". A missing "v" prefix is
	// added at load time.
	Version   string
	Tags      []string
	Author    string
	UpdatedAt time.Time
	Usage     Usage
}

// Usage is the historical performance of a template across sessions.
type Usage struct {
	TimesUsed   int
	SuccessRate float64 // fraction in [0,1]
	AvgRating   float64 // out of 5
}

// HasTag reports whether the template carries the given tag.
func (t *Template) HasTag(tag string) bool {
	return slices.Contains(t.Metadata.Tags, tag)
}

// Instantiate copies the template into a fresh item with the given id.
// The item shares no slices or maps with the template.
func (t *Template) Instantiate(itemID string) assessment.Item {
	return assessment.Item{
		ID:         itemID,
		ModuleID:   t.ModuleID,
		Type:       t.Type,
		Difficulty: t.Difficulty,
		Category:   t.Category,
		Title:      t.Title,
		Scenario: assessment.Scenario{
			Description:  t.Scenario.Description,
			Context:      maps.Clone(t.Scenario.Context),
			Stakeholders: slices.Clone(t.Scenario.Stakeholders),
			Constraints:  slices.Clone(t.Scenario.Constraints),
			Regulations:  slices.Clone(t.Scenario.Regulations),
			Threats:      slices.Clone(t.Scenario.Threats),
			Timeline:     t.Scenario.Timeline,
		},
		Requirements:    slices.Clone(t.Requirements),
		Rubric:          cloneRubric(t.Rubric),
		Hints:           slices.Clone(t.Hints),
		Rules:           slices.Clone(t.Rules),
		TimeBudget:      t.TimeBudget,
		TemplateID:      t.ID,
		TemplateVersion: t.Metadata.Version,
	}
}

func cloneRubric(r assessment.Rubric) assessment.Rubric {
	out := assessment.Rubric{
		Criteria: make([]assessment.Criterion, len(r.Criteria)),
		Bonus:    cloneAdjustments(r.Bonus),
		Penalty:  cloneAdjustments(r.Penalty),
	}
	for i, c := range r.Criteria {
		c.Keywords = slices.Clone(c.Keywords)
		if c.Check != nil {
			chk := cloneCheck(*c.Check)
			c.Check = &chk
		}
		out.Criteria[i] = c
	}
	return out
}

func cloneAdjustments(in []assessment.Adjustment) []assessment.Adjustment {
	if in == nil {
		return nil
	}
	out := make([]assessment.Adjustment, len(in))
	for i, a := range in {
		a.Check = cloneCheck(a.Check)
		out[i] = a
	}
	return out
}

func cloneCheck(c assessment.Check) assessment.Check {
	c.Fields = slices.Clone(c.Fields)
	c.Terms = slices.Clone(c.Terms)
	return c
}
