package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/session"
)

type startSessionRequest struct {
	UserID   string           `json:"user_id" validate:"required,max=128"`
	ModuleID string           `json:"module_id" validate:"required,max=64"`
	Profile  *profile.Profile `json:"profile,omitempty"`

	// Settings are merged over the default settings, so omitted flags keep
	// their defaults.
	Settings json.RawMessage `json:"settings,omitempty"`
}

type submitResponseRequest struct {
	ItemID         string         `json:"item_id"`
	Answers        map[string]any `json:"answers" validate:"required"`
	ElapsedSeconds float64        `json:"elapsed_seconds" validate:"gte=0"`
	HintsUsed      []int          `json:"hints_used,omitempty" validate:"dive,gte=1"`
	Partial        bool           `json:"partial,omitempty"`
}

// reviewRequest settles one deferred-review criterion of a scored response.
type reviewRequest struct {
	ItemIndex   int     `json:"item_index" validate:"gte=0"`
	CriterionID string  `json:"criterion_id" validate:"required,max=64"`
	Points      float64 `json:"points" validate:"gte=0"`
	Narrative   string  `json:"narrative,omitempty" validate:"max=4000"`
	Reviewer    string  `json:"reviewer,omitempty" validate:"max=128"`
}

// sessionView is the client view of a session. Rubrics stay server side.
type sessionView struct {
	ID          string                     `json:"id"`
	UserID      string                     `json:"user_id"`
	ModuleID    string                     `json:"module_id"`
	Status      session.Status             `json:"status"`
	Level       assessment.Difficulty      `json:"level"`
	Index       int                        `json:"index"`
	Total       int                        `json:"total"`
	CurrentItem *assessment.Item           `json:"current_item,omitempty"`
	Scores      []*assessment.Score        `json:"scores"`
	Progress    session.Progress           `json:"progress"`
	Adaptations []session.AdaptationRecord `json:"adaptations,omitempty"`
	StartedAt   time.Time                  `json:"started_at"`
	EndedAt     *time.Time                 `json:"ended_at,omitempty"`
	EndReason   string                     `json:"end_reason,omitempty"`
}

func newSessionView(s *session.Session) sessionView {
	v := sessionView{
		ID:          s.ID,
		UserID:      s.UserID,
		ModuleID:    s.ModuleID,
		Status:      s.Status,
		Level:       s.Level,
		Index:       s.Index,
		Total:       len(s.Items),
		Scores:      s.Scores,
		Progress:    s.Progress,
		Adaptations: s.Adaptations,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		EndReason:   s.EndReason,
	}
	if it := s.CurrentItem(); it != nil {
		v.CurrentItem = publicItem(it)
	}
	if v.Scores == nil {
		v.Scores = []*assessment.Score{}
	}
	return v
}

// publicItem copies an item without its rubric.
func publicItem(it *assessment.Item) *assessment.Item {
	c := *it
	c.Rubric = assessment.Rubric{}
	return &c
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decode(w, r, &req) {
		return
	}

	settings := session.DefaultSettings()
	if len(req.Settings) > 0 {
		if err := json.Unmarshal(req.Settings, &settings); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_settings", "invalid settings: "+err.Error(), nil)
			return
		}
	}
	if err := validate.Var(settings.QuestionCount, "gte=0,lte=20"); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_settings", "question_count must be between 0 and 20", nil)
		return
	}

	var p profile.Profile
	if req.Profile != nil {
		p = *req.Profile
	}

	sess, err := s.sessions.Start(r.Context(), req.UserID, req.ModuleID, p, settings)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	active := s.sessions.Active()
	if active == nil {
		active = []session.Summary{}
	}
	respondJSON(w, http.StatusOK, active)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitResponseRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := s.sessions.ProcessResponse(r.Context(), chi.URLParam(r, "id"), assessment.Response{
		ItemID:    req.ItemID,
		Answers:   req.Answers,
		Elapsed:   time.Duration(req.ElapsedSeconds * float64(time.Second)),
		HintsUsed: req.HintsUsed,
		Partial:   req.Partial,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	if out.NextItem != nil {
		out.NextItem = publicItem(out.NextItem)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.sessions.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.sessions.Resume)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Abandon(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}
	// Abandoning a finalized session is a no-op with nothing left to show.
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(session.StatusAbandoned)})
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	if err := op(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessions.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessions.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := s.sessions.Review(r.Context(), chi.URLParam(r, "id"), req.ItemIndex, scoring.Review{
		CriterionID: req.CriterionID,
		Points:      req.Points,
		Narrative:   req.Narrative,
		Reviewer:    req.Reviewer,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
