package itemgen

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func testTemplate(id string, d assessment.Difficulty, tags ...string) catalog.Template {
	return catalog.Template{
		ID:         id,
		ModuleID:   "workshop-1",
		Type:       assessment.TypeScenarioAnalysis,
		Difficulty: d,
		Title:      "Template " + id,
		TimeBudget: 30,
		Requirements: []assessment.Requirement{
			{ID: "r1", Weight: 0.6},
			{ID: "r2", Weight: 0.4},
		},
		Rubric: assessment.Rubric{Criteria: []assessment.Criterion{
			{ID: "c1", RequirementID: "r1", Points: 10, Method: assessment.MethodAutomatic, Check: &assessment.Check{Kind: assessment.CheckNonEmpty}},
			{ID: "c2", RequirementID: "r2", Points: 10, Method: assessment.MethodHeuristic},
		}},
		Hints:    []assessment.Hint{{Level: 1, Deduction: 2}, {Level: 2, Deduction: 5}},
		Metadata: catalog.Metadata{Version: "v1.0.0", Tags: tags},
	}
}

func newTestGenerator(t *testing.T, cfg Config, templates ...catalog.Template) *CatalogGenerator {
	t.Helper()
	c := catalog.New()
	for _, tmpl := range templates {
		c.Add(tmpl)
	}
	n := 0
	return New(c, nil, cfg,
		WithClock(func() time.Time { return testNow }),
		WithIDFunc(func() string { n++; return fmt.Sprintf("item-%d", n) }),
	)
}

func TestGenerate_CountNeverExceeded(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(),
		testTemplate("a", assessment.Expert),
		testTemplate("b", assessment.Expert),
		testTemplate("c", assessment.Expert),
	)

	for _, count := range []int{1, 2, 3, 5} {
		res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: count})
		if err != nil {
			t.Fatalf("count %d: unexpected error: %v", count, err)
		}
		if len(res.Items) > count {
			t.Errorf("count %d: got %d items", count, len(res.Items))
		}
		if want := min(count, 3); len(res.Items) != want {
			t.Errorf("count %d: got %d items, want %d", count, len(res.Items), want)
		}
	}
}

func TestGenerate_ShortResultHasDiagnostic(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(), testTemplate("a", assessment.Expert))

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(res.Items))
	}
	if res.Diagnostic == nil || res.Diagnostic.Code != CodeInsufficientTemplates {
		t.Errorf("expected insufficient diagnostic, got %+v", res.Diagnostic)
	}
}

func TestGenerate_EmptyModuleIsNotAnError(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(), testTemplate("a", assessment.Expert))

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-7", Difficulty: assessment.Expert, Count: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected no items, got %d", len(res.Items))
	}
	if res.Diagnostic == nil || res.Diagnostic.Code != CodeGenerationEmpty {
		t.Errorf("expected generation_empty diagnostic, got %+v", res.Diagnostic)
	}
}

func TestGenerate_NoDifficultyMatch(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(), testTemplate("a", assessment.Expert))

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Intermediate, Count: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Empty() || res.Diagnostic == nil || res.Diagnostic.Code != CodeGenerationEmpty {
		t.Errorf("expected empty result with diagnostic, got %+v", res)
	}
}

func TestGenerate_AdjacentFallbackRanksExactFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowAdjacent = true
	gen := newTestGenerator(t, cfg,
		testTemplate("advanced", assessment.Advanced),
		testTemplate("expert", assessment.Expert),
		testTemplate("master", assessment.Master),
		testTemplate("intermediate", assessment.Intermediate),
	)

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected 3 items (exact + two adjacent), got %d", len(res.Items))
	}
	if res.Items[0].TemplateID != "expert" {
		t.Errorf("exact match should rank first, got %s", res.Items[0].TemplateID)
	}
}

func TestGenerate_FocusAndExclusions(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(),
		testTemplate("assets", assessment.Expert, "assets", "hospital"),
		testTemplate("threats", assessment.Expert, "threats"),
		testTemplate("finance", assessment.Expert, "assets", "finance"),
	)

	res, _ := gen.Generate(context.Background(), Request{
		ModuleID:       "workshop-1",
		Difficulty:     assessment.Expert,
		Count:          5,
		FocusTags:      []string{"assets"},
		ExcludedTopics: []string{"finance"},
	})
	if len(res.Items) != 1 || res.Items[0].TemplateID != "assets" {
		t.Fatalf("expected only the assets template, got %+v", templateIDs(res.Items))
	}

	res, _ = gen.Generate(context.Background(), Request{
		ModuleID:         "workshop-1",
		Difficulty:       assessment.Expert,
		Count:            5,
		ExcludeTemplates: []string{"assets", "threats"},
	})
	if len(res.Items) != 1 || res.Items[0].TemplateID != "finance" {
		t.Fatalf("expected only the finance template, got %+v", templateIDs(res.Items))
	}
}

func templateIDs(items []assessment.Item) []string {
	var ids []string
	for _, it := range items {
		ids = append(ids, it.TemplateID)
	}
	return ids
}

func TestRegenerate(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(),
		testTemplate("a", assessment.Master),
		testTemplate("b", assessment.Master),
	)
	req := Request{ModuleID: "workshop-1", Difficulty: assessment.Master, Count: 5, ExcludeTemplates: []string{"a"}}

	item, err := Regenerate(context.Background(), gen, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.TemplateID != "b" || item.Difficulty != assessment.Master {
		t.Errorf("expected master item from template b, got %s/%s", item.TemplateID, item.Difficulty)
	}

	req.ExcludeTemplates = []string{"a", "b"}
	if _, err := Regenerate(context.Background(), gen, req); !errors.Is(err, ErrNoReplacement) {
		t.Errorf("expected ErrNoReplacement, got %v", err)
	}
}

func TestRankScore(t *testing.T) {
	tmpl := testTemplate("a", assessment.Expert, "assets", "hospital")
	tmpl.Metadata.Usage = catalog.Usage{SuccessRate: 0.85, AvgRating: 4.5}
	tmpl.Metadata.UpdatedAt = testNow.Add(-10 * 24 * time.Hour)

	got := RankScore(tmpl, assessment.Expert, []string{"assets", "hospital", "other"}, testNow, 30*24*time.Hour)
	// 10 difficulty + 2*5 tags + 5 success + 3 rating + 3 fresh
	if got != 31 {
		t.Errorf("RankScore = %d, want 31", got)
	}

	tmpl.Metadata.Usage = catalog.Usage{SuccessRate: 0.8, AvgRating: 4}
	tmpl.Metadata.UpdatedAt = testNow.Add(-31 * 24 * time.Hour)
	if got := RankScore(tmpl, assessment.Advanced, nil, testNow, 30*24*time.Hour); got != 0 {
		t.Errorf("thresholds are strict, RankScore = %d, want 0", got)
	}
}

func TestGenerate_RankingIsDeterministic(t *testing.T) {
	popular := testTemplate("z-popular", assessment.Expert)
	popular.Metadata.Usage.SuccessRate = 0.9
	gen := newTestGenerator(t, DefaultConfig(),
		testTemplate("b", assessment.Expert),
		popular,
		testTemplate("a", assessment.Expert),
	)

	res, _ := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: 3})
	want := []string{"z-popular", "a", "b"}
	got := templateIDs(res.Items)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGenerate_UsesProfileLevelWhenDifficultyUnset(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(),
		testTemplate("inter", assessment.Intermediate),
		testTemplate("master", assessment.Master),
	)
	master := profile.Profile{
		UserID:          "u",
		EBIOSYears:      12,
		Specializations: []string{"threat_intelligence", "risk_management"},
		Certifications:  []string{"ANSSI"},
	}

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Count: 1, Profile: master})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Level != assessment.Master || len(res.Items) != 1 || res.Items[0].TemplateID != "master" {
		t.Fatalf("expected master item, got level %v items %v", res.Level, templateIDs(res.Items))
	}
	if !hasAdaptation(res.Adaptations, AdaptComplexityIncreased) || !hasAdaptation(res.Adaptations, AdaptEdgeCasesIncluded) {
		t.Errorf("expected master adaptations, got %v", res.Adaptations)
	}
}

func hasAdaptation(list []Adaptation, a Adaptation) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func TestGenerate_AdaptationsAndSectorMerge(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig(), testTemplate("a", assessment.Intermediate))

	res, err := gen.Generate(context.Background(), Request{
		ModuleID:   "workshop-1",
		Count:      1,
		TimeBudget: 20,
		Profile:    profile.Profile{UserID: "u", Sector: "santé"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range []Adaptation{
		AdaptGuidanceEnhanced, AdaptExamplesAdded,
		AdaptSimplifiedRequirement, AdaptFocusedScope,
		AdaptHealthcareSpecifics, AdaptRegulatoryFocus,
	} {
		if !hasAdaptation(res.Adaptations, a) {
			t.Errorf("missing adaptation %q in %v", a, res.Adaptations)
		}
	}

	item := res.Items[0]
	if item.TimeBudget != 20 {
		t.Errorf("time budget = %d, want 20 (request share)", item.TimeBudget)
	}
	if len(item.Scenario.Regulations) == 0 || item.Scenario.Context["rto"] != "< 4 hours" {
		t.Errorf("sector context not merged: %+v", item.Scenario)
	}
	if item.Scenario.Context["workshop_focus"] != "asset_identification" {
		t.Errorf("workshop specifics not merged: %+v", item.Scenario.Context)
	}
}

func TestGenerate_DropsInvalidItems(t *testing.T) {
	bad := testTemplate("bad", assessment.Expert)
	bad.Requirements[0].Weight = 0.9
	gen := newTestGenerator(t, DefaultConfig(), bad, testTemplate("good", assessment.Expert))

	res, _ := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: 2})
	if got := templateIDs(res.Items); len(got) != 1 || got[0] != "good" {
		t.Errorf("expected only the valid template, got %v", got)
	}
}

func TestGenerate_KeepsMisconfiguredRubric(t *testing.T) {
	tmpl := testTemplate("no-check", assessment.Expert)
	tmpl.Rubric.Criteria[0].Check = nil
	gen := newTestGenerator(t, DefaultConfig(), tmpl)

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Difficulty: assessment.Expert, Count: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("template should be kept, got %d items (%v)", len(res.Items), res.Diagnostic)
	}

	item := res.Items[0]
	_, err = scoring.NewEngine(nil, scoring.DefaultConfig()).Score(context.Background(), &item, &assessment.Response{
		ItemID:  item.ID,
		Answers: map[string]any{"r1": "x", "r2": "y"},
	})
	var rce *scoring.RubricConfigurationError
	if !errors.As(err, &rce) || rce.CriterionID != "c1" {
		t.Fatalf("expected RubricConfigurationError for c1, got %v", err)
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	gen := newTestGenerator(t, DefaultConfig())
	for _, req := range []Request{
		{ModuleID: "", Count: 1},
		{ModuleID: "workshop-1", Count: 0},
		{ModuleID: "workshop-1", Count: 1000},
	} {
		if _, err := gen.Generate(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("request %+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
}

type failingSource struct{}

func (failingSource) FetchTemplates(ctx context.Context, _ string) ([]catalog.Template, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerate_SourceTimeoutDegrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FetchTimeout = 10 * time.Millisecond
	gen := New(failingSource{}, nil, cfg)

	res, err := gen.Generate(context.Background(), Request{ModuleID: "workshop-1", Count: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Empty() || res.Diagnostic == nil || res.Diagnostic.Code != CodeSourceUnavailable {
		t.Errorf("expected source_unavailable diagnostic, got %+v", res.Diagnostic)
	}
}

func TestValidators(t *testing.T) {
	base := func() assessment.Item {
		tmpl := testTemplate("a", assessment.Expert)
		return tmpl.Instantiate("item")
	}

	tests := []struct {
		name   string
		mutate func(*assessment.Item)
		want   string
	}{
		{"valid", func(*assessment.Item) {}, ""},
		{"no criteria", func(it *assessment.Item) { it.Rubric.Criteria = nil }, "structural"},
		{"zero points", func(it *assessment.Item) { it.Rubric.Criteria[0].Points = 0 }, "structural"},
		{"weights", func(it *assessment.Item) { it.Requirements[1].Weight = 0.5 }, "weights"},
		{"too many hints", func(it *assessment.Item) {
			it.Hints = []assessment.Hint{{Level: 1}, {Level: 2}, {Level: 3}, {Level: 4}}
		}, "hints"},
		{"unordered hints", func(it *assessment.Item) { it.Hints = []assessment.Hint{{Level: 2}, {Level: 1}} }, "hints"},
		{"dangling requirement", func(it *assessment.Item) { it.Rubric.Criteria[0].RequirementID = "nope" }, "references"},
		{"automatic without check", func(it *assessment.Item) { it.Rubric.Criteria[0].Check = nil }, ""},
		{"unknown method", func(it *assessment.Item) { it.Rubric.Criteria[1].Method = "peer_vote" }, ""},
	}
	validators := DefaultConfig().Validators
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := base()
			tt.mutate(&item)
			var got string
			for _, v := range validators {
				if verr := v.Validate(&item); verr != nil {
					got = verr.Validator
					break
				}
			}
			if got != tt.want {
				t.Errorf("failed validator = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerate_SeedCatalog(t *testing.T) {
	c := catalog.New()
	if _, err := catalog.NewLoader(c).LoadEmbedded(); err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	gen := New(c, nil, DefaultConfig())

	for _, moduleID := range c.Modules() {
		for _, tmpl := range c.ByModule(moduleID) {
			res, err := gen.Generate(context.Background(), Request{ModuleID: moduleID, Difficulty: tmpl.Difficulty, Count: 1})
			if err != nil {
				t.Fatalf("%s: %v", tmpl.ID, err)
			}
			if len(res.Items) != 1 {
				t.Errorf("%s: seed template rejected: %+v", tmpl.ID, res.Diagnostic)
			}
		}
	}
}
