package itemgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/profile"
)

// ErrInvalidRequest is returned for requests that cannot be served at all.
var ErrInvalidRequest = errors.New("invalid generation request")

// Generator produces assessment items for a session.
type Generator interface {
	// Generate selects and instantiates up to req.Count items. An empty
	// result carries a Diagnostic; it is not an error.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// CatalogGenerator implements Generator on top of a template source.
type CatalogGenerator struct {
	source  catalog.Source
	adapter *profile.Adapter
	config  Config

	now   func() time.Time
	newID func() string
}

// Option customizes a CatalogGenerator.
type Option func(*CatalogGenerator)

// WithClock overrides the time source used for freshness ranking.
func WithClock(now func() time.Time) Option {
	return func(g *CatalogGenerator) { g.now = now }
}

// WithIDFunc overrides item id generation.
func WithIDFunc(f func() string) Option {
	return func(g *CatalogGenerator) { g.newID = f }
}

// New creates a CatalogGenerator.
func New(source catalog.Source, adapter *profile.Adapter, cfg Config, opts ...Option) *CatalogGenerator {
	if adapter == nil {
		adapter, _ = profile.NewAdapter(nil, nil, profile.DefaultConfig())
	}
	g := &CatalogGenerator{
		source:  source,
		adapter: adapter,
		config:  cfg,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate implements Generator.
func (g *CatalogGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.ModuleID == "" {
		return nil, fmt.Errorf("%w: module id is required", ErrInvalidRequest)
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRequest, req.Count)
	}
	if req.Count > g.config.MaxCount {
		return nil, fmt.Errorf("%w: count %d exceeds maximum %d", ErrInvalidRequest, req.Count, g.config.MaxCount)
	}

	gctx := g.adapter.Adapt(ctx, req.Profile, req.ModuleID)
	difficulty := req.Difficulty
	if !difficulty.Valid() {
		difficulty = gctx.Level
	}

	result := &Result{
		Level:       difficulty,
		Context:     gctx,
		Adaptations: adaptations(gctx, req),
	}

	fctx, cancel := context.WithTimeout(ctx, g.config.FetchTimeout)
	templates, err := g.source.FetchTemplates(fctx, req.ModuleID)
	cancel()
	if err != nil {
		slog.Warn("template source failed", "module", req.ModuleID, "error", err)
		result.Diagnostic = &Diagnostic{
			Code:    CodeSourceUnavailable,
			Message: fmt.Sprintf("template source for %s failed: %v", req.ModuleID, err),
		}
		return result, nil
	}
	if len(templates) == 0 {
		result.Diagnostic = &Diagnostic{
			Code:    CodeGenerationEmpty,
			Message: fmt.Sprintf("no templates for module %s", req.ModuleID),
		}
		return result, nil
	}

	candidates := filter(templates, req, difficulty, g.config.AllowAdjacent)
	ordered := rank(candidates, difficulty, req.FocusTags, g.now(), g.config.FreshnessWindow)

	budget := g.itemBudget(req)
	for _, r := range ordered {
		if len(result.Items) == req.Count {
			break
		}
		item := g.instantiate(r.tmpl, gctx, budget)
		if verr := g.validate(&item); verr != nil {
			slog.Warn("dropping invalid item", "template", r.tmpl.ID, "error", verr)
			continue
		}
		result.Items = append(result.Items, item)
	}

	switch {
	case len(result.Items) == 0:
		result.Diagnostic = &Diagnostic{
			Code: CodeGenerationEmpty,
			Message: fmt.Sprintf("no %s template in %s matches the request (%d templates considered)",
				difficulty, req.ModuleID, len(templates)),
		}
	case len(result.Items) < req.Count:
		result.Diagnostic = &Diagnostic{
			Code:    CodeInsufficientTemplates,
			Message: fmt.Sprintf("requested %d items, %d available", req.Count, len(result.Items)),
		}
	}
	return result, nil
}

// ErrNoReplacement is returned by Regenerate when no template can fill the slot.
var ErrNoReplacement = errors.New("no replacement item")

// Regenerate produces a single item for adaptive replacement of a session
// slot. req.Count is forced to 1; templates in req.ExcludeTemplates are
// never reused.
func Regenerate(ctx context.Context, g Generator, req Request) (assessment.Item, error) {
	req.Count = 1
	res, err := g.Generate(ctx, req)
	if err != nil {
		return assessment.Item{}, err
	}
	if res.Empty() {
		return assessment.Item{}, fmt.Errorf("%w: %s", ErrNoReplacement, res.Diagnostic)
	}
	return res.Items[0], nil
}

func (g *CatalogGenerator) validate(item *assessment.Item) *ValidationError {
	for _, v := range g.config.Validators {
		if verr := v.Validate(item); verr != nil {
			return verr
		}
	}
	return nil
}

// itemBudget returns the per-item time share in minutes, or 0 when the
// request is unbounded.
func (g *CatalogGenerator) itemBudget(req Request) int {
	if req.TimeBudget <= 0 {
		return 0
	}
	share := req.TimeBudget / req.Count
	return max(share, g.config.MinItemBudget)
}

func (g *CatalogGenerator) instantiate(t catalog.Template, gctx profile.Context, budget int) assessment.Item {
	item := t.Instantiate(g.newID())
	if budget > 0 && budget < item.TimeBudget {
		item.TimeBudget = budget
	}

	if item.Scenario.Context == nil {
		item.Scenario.Context = make(map[string]any)
	}
	item.Scenario.Context["workshop_phase"] = gctx.Workshop.Phase
	item.Scenario.Context["workshop_focus"] = gctx.Workshop.Focus
	item.Scenario.Context["expected_deliverables"] = slices.Clone(gctx.Workshop.Deliverables)

	sector := gctx.Sector
	if !sector.Empty() {
		item.Scenario.Regulations = mergeUnique(item.Scenario.Regulations, sector.Regulations)
		item.Scenario.Threats = mergeUnique(item.Scenario.Threats, sector.Threats)
		item.Scenario.Constraints = mergeUnique(item.Scenario.Constraints, sector.Constraints)
		if sector.RTO != "" {
			item.Scenario.Context["rto"] = sector.RTO
		}
		if sector.RPO != "" {
			item.Scenario.Context["rpo"] = sector.RPO
		}
	}
	return item
}

func mergeUnique(base, extra []string) []string {
	out := slices.Clone(base)
	for _, e := range extra {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// adaptations derives the tailoring notes for a request.
func adaptations(gctx profile.Context, req Request) []Adaptation {
	var out []Adaptation
	switch gctx.Level {
	case assessment.Master:
		out = append(out, AdaptComplexityIncreased, AdaptEdgeCasesIncluded)
	case assessment.Intermediate:
		out = append(out, AdaptGuidanceEnhanced, AdaptExamplesAdded)
	}
	if req.TimeBudget > 0 && req.TimeBudget < 30 {
		out = append(out, AdaptSimplifiedRequirement, AdaptFocusedScope)
	}
	if gctx.Sector.Sector == "healthcare" {
		out = append(out, AdaptHealthcareSpecifics, AdaptRegulatoryFocus)
	}
	return out
}
