package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/profile"
)

type templateSummary struct {
	ID         string                `json:"id"`
	ModuleID   string                `json:"module_id"`
	Type       assessment.ItemType   `json:"type"`
	Difficulty assessment.Difficulty `json:"difficulty"`
	Category   string                `json:"category,omitempty"`
	Title      string                `json:"title"`
	Version    string                `json:"version"`
	Tags       []string              `json:"tags,omitempty"`
	TimeBudget int                   `json:"time_budget"`
	MaxPoints  float64               `json:"max_points"`
}

func summarize(t catalog.Template) templateSummary {
	item := t.Instantiate(t.ID)
	return templateSummary{
		ID:         t.ID,
		ModuleID:   t.ModuleID,
		Type:       t.Type,
		Difficulty: t.Difficulty,
		Category:   t.Category,
		Title:      t.Title,
		Version:    t.Metadata.Version,
		Tags:       t.Metadata.Tags,
		TimeBudget: t.TimeBudget,
		MaxPoints:  item.MaxPoints(),
	}
}

type generateItemsRequest struct {
	ModuleID       string                `json:"module_id" validate:"required,max=64"`
	Difficulty     assessment.Difficulty `json:"difficulty,omitempty"`
	Count          int                   `json:"count" validate:"gte=1,lte=20"`
	FocusTags      []string              `json:"focus_tags,omitempty"`
	ExcludedTopics []string              `json:"excluded_topics,omitempty"`
	TimeBudget     int                   `json:"time_budget,omitempty" validate:"gte=0"`
	Profile        profile.Profile       `json:"profile"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondJSON(w, http.StatusOK, []templateSummary{})
		return
	}

	var templates []catalog.Template
	if module := r.URL.Query().Get("module"); module != "" {
		templates = s.catalog.ByModule(module)
	} else {
		templates = s.catalog.All()
	}
	if level := r.URL.Query().Get("difficulty"); level != "" {
		d, err := assessment.ParseDifficulty(level)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
			return
		}
		filtered := templates[:0]
		for _, t := range templates {
			if t.Difficulty == d {
				filtered = append(filtered, t)
			}
		}
		templates = filtered
	}

	out := make([]templateSummary, 0, len(templates))
	for _, t := range templates {
		out = append(out, summarize(t))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "template_not_found", "template not found", nil)
		return
	}
	t, ok := s.catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "template_not_found", "template not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, summarize(t))
}

// handleGenerateItems previews generation without starting a session.
// Empty results are reported with their diagnostic, not as errors.
func (s *Server) handleGenerateItems(w http.ResponseWriter, r *http.Request) {
	var req generateItemsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Difficulty != 0 && !req.Difficulty.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "unknown difficulty", nil)
		return
	}

	res, err := s.generator.Generate(r.Context(), itemgen.Request{
		ModuleID:       req.ModuleID,
		Difficulty:     req.Difficulty,
		Count:          req.Count,
		FocusTags:      req.FocusTags,
		ExcludedTopics: req.ExcludedTopics,
		TimeBudget:     req.TimeBudget,
		Profile:        req.Profile,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	for i := range res.Items {
		res.Items[i].Rubric = assessment.Rubric{}
	}
	respondJSON(w, http.StatusOK, res)
}
