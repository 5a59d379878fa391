package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/config"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/session"
	"github.com/abhisek/riskdrill/internal/store"
)

// Modules are the EBIOS RM workshops every deployment must cover.
var Modules = []string{"workshop-1", "workshop-2", "workshop-3", "workshop-4", "workshop-5"}

// Pinger checks that an external dependency answers.
type Pinger func(ctx context.Context) error

// Target is the wired service under check.
type Target struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Generator itemgen.Generator
	Scorer    scoring.Scorer

	// Pingers are named connectivity checks (sqlite, redis).
	Pingers map[string]Pinger
	// LLM sends one tiny request to the grading model. Nil when the
	// keyword evaluator is in use.
	LLM Pinger
}

var deployed = []string{config.EnvStaging, config.EnvProduction}

// DefaultChecks builds the standard check list for t.
func DefaultChecks(t Target) []Check {
	checks := []Check{
		{
			Name:        "config.valid",
			Description: "configuration passes validation",
			Severity:    SeverityCritical,
			Run: func(context.Context) error {
				if t.Config == nil {
					return errors.New("no configuration loaded")
				}
				return t.Config.Validate()
			},
		},
		{
			Name:        "catalog.loaded",
			Description: "template catalog is not empty",
			Severity:    SeverityCritical,
			Run: func(context.Context) error {
				if t.Catalog == nil || t.Catalog.Len() == 0 {
					return errors.New("catalog has no templates")
				}
				return nil
			},
		},
		{
			Name:        "catalog.coverage",
			Description: "every workshop has at least one template",
			Severity:    SeverityWarning,
			Run: func(context.Context) error {
				if t.Catalog == nil {
					return errors.New("no catalog")
				}
				var missing []string
				for _, m := range Modules {
					if len(t.Catalog.ByModule(m)) == 0 {
						missing = append(missing, m)
					}
				}
				if len(missing) > 0 {
					return fmt.Errorf("no templates for %s", strings.Join(missing, ", "))
				}
				return nil
			},
		},
	}

	for _, m := range Modules {
		checks = append(checks, Check{
			Name:        "itemgen." + m,
			Description: "generates a valid item for " + m,
			Severity:    SeverityCritical,
			Run:         func(ctx context.Context) error { return generateOne(ctx, t, m) },
		})
	}

	checks = append(checks,
		Check{
			Name:        "scoring.roundtrip",
			Description: "scores an empty response within bounds",
			Severity:    SeverityCritical,
			Run:         func(ctx context.Context) error { return scoreRoundtrip(ctx, t) },
		},
		Check{
			Name:        "session.lifecycle",
			Description: "runs a one-item session to results in memory",
			Severity:    SeverityCritical,
			Run:         func(ctx context.Context) error { return sessionLifecycle(ctx, t) },
		},
		Check{
			Name:        "llm.config",
			Description: "LLM provider is configured when the llm evaluator is selected",
			Severity:    SeverityWarning,
			Run: func(context.Context) error {
				if t.Config == nil || t.Config.Scoring.Evaluator != "llm" {
					return fmt.Errorf("keyword evaluator in use: %w", ErrSkipped)
				}
				return t.Config.LLMProvider().Validate()
			},
		},
		Check{
			Name:        "llm.reachable",
			Description: "grading model answers a structured request",
			Severity:    SeverityCritical,
			Envs:        deployed,
			Run: func(ctx context.Context) error {
				if t.LLM == nil {
					return fmt.Errorf("no llm provider wired: %w", ErrSkipped)
				}
				return t.LLM(ctx)
			},
		},
		Check{
			Name:        "production.store",
			Description: "sessions survive restarts",
			Severity:    SeverityCritical,
			Envs:        []string{config.EnvProduction},
			Run: func(context.Context) error {
				if t.Config != nil && t.Config.Store.Driver == "memory" {
					return errors.New("memory session store loses sessions on restart")
				}
				return nil
			},
		},
		Check{
			Name:        "production.log_format",
			Description: "logs are structured",
			Severity:    SeverityWarning,
			Envs:        []string{config.EnvProduction},
			Run: func(context.Context) error {
				if t.Config != nil && t.Config.Log.Format != "json" {
					return fmt.Errorf("log format is %q, want json", t.Config.Log.Format)
				}
				return nil
			},
		},
	)

	for _, name := range slices.Sorted(maps.Keys(t.Pingers)) {
		ping := t.Pingers[name]
		checks = append(checks, Check{
			Name:        "store." + name,
			Description: name + " answers a ping",
			Severity:    SeverityCritical,
			Envs:        deployed,
			Run:         func(ctx context.Context) error { return ping(ctx) },
		})
	}

	return checks
}

// lowestLevel is the easiest difficulty the catalog offers for a module.
func lowestLevel(c *catalog.Catalog, moduleID string) (assessment.Difficulty, error) {
	if c == nil {
		return 0, errors.New("no catalog")
	}
	templates := c.ByModule(moduleID)
	if len(templates) == 0 {
		return 0, fmt.Errorf("no templates for %s", moduleID)
	}
	level := templates[0].Difficulty
	for _, tpl := range templates[1:] {
		if tpl.Difficulty < level {
			level = tpl.Difficulty
		}
	}
	return level, nil
}

func generateItem(ctx context.Context, t Target, moduleID string) (*assessment.Item, error) {
	if t.Generator == nil {
		return nil, errors.New("no generator")
	}
	level, err := lowestLevel(t.Catalog, moduleID)
	if err != nil {
		return nil, err
	}
	res, err := t.Generator.Generate(ctx, itemgen.Request{
		ModuleID:   moduleID,
		Difficulty: level,
		Count:      1,
		Profile:    profile.Profile{UserID: "selfcheck"},
	})
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		if res.Diagnostic != nil {
			return nil, errors.New(res.Diagnostic.String())
		}
		return nil, errors.New("no items generated")
	}
	return &res.Items[0], nil
}

func generateOne(ctx context.Context, t Target, moduleID string) error {
	item, err := generateItem(ctx, t, moduleID)
	if err != nil {
		return err
	}
	if item.MaxPoints() <= 0 {
		return fmt.Errorf("item %s has no rubric points", item.ID)
	}
	return nil
}

func scoreRoundtrip(ctx context.Context, t Target) error {
	if t.Scorer == nil {
		return errors.New("no scorer")
	}
	item, err := generateItem(ctx, t, Modules[0])
	if err != nil {
		return err
	}
	score, err := t.Scorer.Score(ctx, item, &assessment.Response{
		ItemID:  item.ID,
		UserID:  "selfcheck",
		Answers: map[string]any{},
	})
	if err != nil {
		return err
	}
	if score.Percentage < 0 || score.Percentage > 100 {
		return fmt.Errorf("percentage %d out of range", score.Percentage)
	}
	if score.Earned < 0 || score.Earned > score.Max {
		return fmt.Errorf("earned %.2f outside 0..%.2f", score.Earned, score.Max)
	}
	return nil
}

func sessionLifecycle(ctx context.Context, t Target) error {
	if t.Generator == nil || t.Scorer == nil {
		return errors.New("generator and scorer are required")
	}
	level, err := lowestLevel(t.Catalog, Modules[0])
	if err != nil {
		return err
	}

	mem := store.NewMemoryStore()
	orch, err := session.New(session.Deps{
		Generator: t.Generator,
		Scorer:    t.Scorer,
		Sessions:  mem,
		Archive:   mem,
	}, session.DefaultConfig())
	if err != nil {
		return err
	}

	settings := session.DefaultSettings()
	settings.Difficulty = level
	settings.QuestionCount = 1
	settings.Adaptive = false

	s, err := orch.Start(ctx, "selfcheck", Modules[0], profile.Profile{UserID: "selfcheck"}, settings)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	out, err := orch.ProcessResponse(ctx, s.ID, assessment.Response{Answers: map[string]any{}})
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	if !out.SessionComplete {
		return errors.New("session did not complete after its only item")
	}
	res, err := orch.Finalize(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if res.SessionID != s.ID {
		return fmt.Errorf("results belong to %q", res.SessionID)
	}
	return nil
}
