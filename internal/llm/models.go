package llm

import "strings"

// Model is an entry of the model table: the friendly alias accepted in
// configuration, the vendor model id, and list prices in USD per million
// tokens.
type Model struct {
	Provider      string
	Alias         string
	ID            string
	InputPerMTok  float64
	OutputPerMTok float64
}

// ModelCost is the pricing part of a Model.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the USD cost of one request.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*c.InputPerMTok + float64(outputTokens)*c.OutputPerMTok) / 1_000_000
}

// models lists the graders riskdrill is tuned for. The first entry of each
// provider is its default. Prices as of 2026-10.
var models = []Model{
	{"anthropic", "claude-haiku", "claude-haiku-4-5-20251001", 1, 5},
	{"anthropic", "claude-sonnet", "claude-sonnet-4-5-20250929", 3, 15},
	{"openai", "gpt-4o-mini", "gpt-4o-mini", 0.15, 0.6},
	{"openai", "gpt-4.1-mini", "gpt-4.1-mini", 0.4, 1.6},
	{"openai", "gpt-4.1", "gpt-4.1", 2, 8},
	{"gemini", "gemini-flash", "gemini-2.5-flash", 0.3, 2.5},
	{"gemini", "gemini-pro", "gemini-2.5-pro", 1.25, 10},
	{"openrouter", "or-gpt-4o-mini", "openai/gpt-4o-mini", 0.15, 0.6},
	{"openrouter", "or-claude-haiku", "anthropic/claude-haiku-4.5", 1, 5},
	{"openrouter", "or-gemini-flash", "google/gemini-2.5-flash", 0.3, 2.5},
}

// DefaultModel is the model id used when none is configured.
func DefaultModel(provider string) string {
	for _, m := range models {
		if m.Provider == provider {
			return m.ID
		}
	}
	return ""
}

// ResolveModel maps an alias of provider to its model id. Unknown names are
// passed through so any vendor id can be configured directly; an empty name
// yields the provider default.
func ResolveModel(provider, name string) string {
	if name == "" {
		return DefaultModel(provider)
	}
	for _, m := range models {
		if m.Provider == provider && m.Alias == name {
			return m.ID
		}
	}
	return name
}

// LookupCost prices a model id as reported by the vendor. Vendors often
// append a snapshot suffix ("gpt-4o-mini-2024-07-18"), so the longest table
// id that prefixes modelID wins. Nil when unknown.
func LookupCost(modelID string) *ModelCost {
	var best *Model
	for i := range models {
		m := &models[i]
		if !strings.HasPrefix(modelID, m.ID) {
			continue
		}
		if best == nil || len(m.ID) > len(best.ID) {
			best = m
		}
	}
	if best == nil {
		return nil
	}
	return &ModelCost{InputPerMTok: best.InputPerMTok, OutputPerMTok: best.OutputPerMTok}
}
