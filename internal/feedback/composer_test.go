package feedback

import (
	"strings"
	"testing"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/profile"
)

func TestSelectPersona(t *testing.T) {
	tests := []struct {
		name string
		in   Selection
		want string
	}{
		{"excellence wins first", Selection{ModuleID: "workshop-2", Level: assessment.Intermediate, Percentage: 85}, PersonaLaurent},
		{"threat struggle", Selection{ModuleID: "workshop-2", Level: assessment.Intermediate, Percentage: 40}, PersonaMarc},
		{"novice struggle", Selection{ModuleID: "workshop-4", Level: assessment.Intermediate, Percentage: 55}, PersonaSophie},
		{"scoping", Selection{ModuleID: "workshop-1", Level: assessment.Master, Percentage: 70}, PersonaSophie},
		{"operational coaching", Selection{ModuleID: "workshop-4", Level: assessment.Expert, Percentage: 65}, PersonaClaire},
		{"operational needs advanced", Selection{ModuleID: "workshop-5", Level: assessment.Intermediate, Percentage: 65}, PersonaSophie},
		{"workshop 2 passing", Selection{ModuleID: "workshop-2", Level: assessment.Expert, Percentage: 70}, PersonaSophie},
		{"unknown module", Selection{ModuleID: "other", Level: assessment.Master, Percentage: 10}, PersonaSophie},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectPersona(DefaultPersonaRules, tt.in); got.ID != tt.want {
				t.Errorf("SelectPersona = %s, want %s", got.ID, tt.want)
			}
			// Pure function: repeated calls agree.
			if a, b := SelectPersona(DefaultPersonaRules, tt.in), SelectPersona(DefaultPersonaRules, tt.in); a.ID != b.ID {
				t.Errorf("selection not deterministic: %s vs %s", a.ID, b.ID)
			}
		})
	}
}

func TestSelectPersona_CustomRulesAndUnknownPersona(t *testing.T) {
	rules := []PersonaRule{
		{Name: "broken", Match: func(Selection) bool { return true }, PersonaID: "ghost"},
		{Name: "always_marc", Match: func(Selection) bool { return true }, PersonaID: PersonaMarc},
	}
	if got := SelectPersona(rules, Selection{}); got.ID != PersonaMarc {
		t.Errorf("got %s, want %s", got.ID, PersonaMarc)
	}
	if got := SelectPersona(nil, Selection{}); got.ID != DefaultPersonaID {
		t.Errorf("empty table got %s", got.ID)
	}
}

func testItem() *assessment.Item {
	return &assessment.Item{
		ID:       "item-1",
		ModuleID: "workshop-2",
		Requirements: []assessment.Requirement{
			{ID: "profiles", Title: "Threat profiles"},
			{ID: "pairs", Title: "Risk source pairs"},
		},
	}
}

func weakScore() *assessment.Score {
	return &assessment.Score{
		ItemID:        "item-1",
		Percentage:    40,
		HintDeduction: 5,
		Breakdown: []assessment.CriterionScore{
			{CriterionID: "c1", Name: "Profile depth", Earned: 9, Max: 10, Narrative: "Detailed."},
			{CriterionID: "c2", Name: "Pair relevance", Earned: 2, Max: 10, Narrative: "Pairs are generic."},
			{CriterionID: "c3", Name: "Expert review", Max: 5, Pending: true},
			{CriterionID: "penalty:generic", Name: "Generic attackers", Earned: -3},
		},
		Validation: assessment.Validation{
			Valid: false,
			Errors: []assessment.Finding{{
				Field: "pairs", Rule: "required", Message: "Pairs are required",
				Severity: assessment.SeverityCritical, Suggestion: "Provide an answer for pairs.",
			}},
			Warnings: []assessment.Finding{{
				Field: "profiles", Rule: "ebios_compliance", Message: "profiles does not use EBIOS RM terminology",
				Severity: assessment.SeverityMinor, Suggestion: "Reference the EBIOS RM concepts.",
			}},
			Completeness: 0.5,
			Quality:      0.4,
		},
	}
}

func TestCompose_Content(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	c := NewComposer(WithClock(func() time.Time { return now }), WithIDFunc(func() string { return "fb-1" }))
	resp := &assessment.Response{UserID: "u1", Answers: map[string]any{"profiles": "Organized crime"}}

	fb := c.Compose(testItem(), resp, weakScore(), profile.Profile{UserID: "u1"})

	if fb.ID != "fb-1" || !fb.CreatedAt.Equal(now) || fb.UserID != "u1" {
		t.Errorf("metadata = %+v", fb)
	}
	if fb.Persona.ID != PersonaMarc {
		t.Fatalf("persona = %s, want %s", fb.Persona.ID, PersonaMarc)
	}
	im := fb.Content.Immediate
	if !strings.Contains(im.Summary, "40%") {
		t.Errorf("summary = %q", im.Summary)
	}
	if len(im.Highlights) != 1 || im.Highlights[0] != "Profile depth" {
		t.Errorf("highlights = %v", im.Highlights)
	}
	wantConcerns := []string{"Pair relevance", "Expert review", "Penalty: Generic attackers", "Pairs are required"}
	for _, w := range wantConcerns {
		found := false
		for _, c := range im.Concerns {
			if strings.Contains(c, w) {
				found = true
			}
		}
		if !found {
			t.Errorf("concerns %v missing %q", im.Concerns, w)
		}
	}
	if len(im.UrgentActions) != 1 || len(im.QuickWins) != 2 {
		t.Errorf("urgent = %v quick wins = %v", im.UrgentActions, im.QuickWins)
	}

	d := fb.Content.Detailed
	if len(d.Strengths) != 1 || len(d.Improvements) != 1 {
		t.Fatalf("strengths = %+v improvements = %+v", d.Strengths, d.Improvements)
	}
	if d.Improvements[0].Priority != PriorityHigh || len(d.Improvements[0].Resources) == 0 {
		t.Errorf("improvement = %+v", d.Improvements[0])
	}
	if len(d.Gaps) != 1 || d.Gaps[0] != "Risk source pairs" {
		t.Errorf("gaps = %v", d.Gaps)
	}

	m := fb.Content.Methodological
	if !strings.HasPrefix(m.Phase, "Workshop 2") {
		t.Errorf("phase = %q", m.Phase)
	}
	if m.Compliance[0].Status != NonCompliant || m.Compliance[1].Status != Partial {
		t.Errorf("compliance = %+v", m.Compliance)
	}
	if fb.Content.Motivational.Message == "" {
		t.Error("expected a motivational message")
	}
	if len(fb.Content.NextSteps.Immediate) < 2 || len(fb.Content.NextSteps.LongTerm) == 0 {
		t.Errorf("next steps = %+v", fb.Content.NextSteps)
	}

	e := fb.Effectiveness
	for name, v := range map[string]float64{
		"clarity": e.Clarity, "relevance": e.Relevance, "actionability": e.Actionability,
		"motivation": e.Motivation, "overall": e.Overall,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v out of range", name, v)
		}
	}
	if e.Relevance != 0.95 {
		t.Errorf("threat persona on workshop 2 should be highly relevant, got %v", e.Relevance)
	}
}

func TestCompose_ToneChangesPhrasingNotFacts(t *testing.T) {
	score := weakScore()
	score.Percentage = 90
	supportive := NewComposer(WithRules([]PersonaRule{{Match: func(Selection) bool { return true }, PersonaID: PersonaSophie}}))
	direct := NewComposer(WithRules([]PersonaRule{{Match: func(Selection) bool { return true }, PersonaID: PersonaClaire}}))

	a := supportive.Compose(testItem(), nil, score, profile.Profile{})
	b := direct.Compose(testItem(), nil, score, profile.Profile{})

	if a.Content.Immediate.Summary == b.Content.Immediate.Summary {
		t.Error("expected different phrasing per style")
	}
	if len(a.Content.Immediate.Concerns) != len(b.Content.Immediate.Concerns) ||
		len(a.Content.Detailed.Improvements) != len(b.Content.Detailed.Improvements) {
		t.Error("facts must not depend on the persona")
	}
	if a.Content.Detailed.Improvements[0].Gap != b.Content.Detailed.Improvements[0].Gap {
		t.Error("gaps must not depend on the persona")
	}
}

func TestBandFor(t *testing.T) {
	for p, want := range map[int]Band{100: BandExcellent, 80: BandExcellent, 79: BandGood, 70: BandGood, 60: BandSatisfactory, 59: BandWeak, 0: BandWeak} {
		if got := BandFor(p); got != want {
			t.Errorf("BandFor(%d) = %s, want %s", p, got, want)
		}
	}
}

func TestPersonasAreComplete(t *testing.T) {
	for _, p := range Personas() {
		if p.Name == "" || p.Style == "" || len(p.Expertise) == 0 {
			t.Errorf("incomplete persona %+v", p)
		}
		for _, band := range []Band{BandExcellent, BandGood, BandSatisfactory, BandWeak} {
			if summaryPhrases[p.Style][band] == "" || motivationPhrases[p.Style][band] == "" {
				t.Errorf("style %s has no phrasing for %s", p.Style, band)
			}
		}
	}
}
