package session

import (
	"slices"
	"time"

	"github.com/abhisek/riskdrill/internal/adapt"
	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/feedback"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/profile"
)

// Status is the state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// canTransition encodes the session state machine. Terminal states never
// move, and nothing returns to active once completed or abandoned.
func canTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusActive || to == StatusPaused || to == StatusCompleted || to == StatusAbandoned
	case StatusPaused:
		return to == StatusActive || to == StatusAbandoned
	}
	return false
}

// AdaptationRecord is the outcome of the adaptation rules after one response.
type AdaptationRecord struct {
	AfterItem   int                   `json:"after_item"`
	Decision    adapt.Decision        `json:"decision"`
	Level       assessment.Difficulty `json:"level"`
	Regenerated bool                  `json:"regenerated"`
}

// Progress is the running analytics snapshot of a session.
type Progress struct {
	Metrics analytics.Metrics `json:"metrics"`
	Trend   analytics.Trend   `json:"trend"`
}

// Session is the aggregate root of one assessment run. It is mutated only
// by the Orchestrator under the session lock.
type Session struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	ModuleID string           `json:"module_id"`
	Profile  profile.Profile  `json:"profile"`
	Settings Settings         `json:"settings"`
	Status   Status           `json:"status"`

	// StartLevel is the difficulty the session was generated at; Level is
	// the current one after adaptations.
	StartLevel assessment.Difficulty `json:"start_level"`
	Level      assessment.Difficulty `json:"level"`

	// Index is the position of the current item. It never decreases.
	Index int `json:"index"`

	Items     []assessment.Item     `json:"items"`
	Responses []assessment.Response `json:"responses"`
	Scores    []*assessment.Score   `json:"scores"`
	Feedback  []*feedback.Feedback  `json:"feedback"`

	Adaptations     []AdaptationRecord   `json:"adaptations,omitempty"`
	GenerationNotes []itemgen.Adaptation `json:"generation_notes,omitempty"`
	Diagnostic      *itemgen.Diagnostic  `json:"diagnostic,omitempty"`
	Progress        Progress             `json:"progress"`

	Elapsed      time.Duration `json:"elapsed"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`

	// EndReason says why an abandoned session ended.
	EndReason string `json:"end_reason,omitempty"`
}

// CurrentItem returns the item awaiting a response, or nil when none remain.
func (s *Session) CurrentItem() *assessment.Item {
	if s.Index >= len(s.Items) {
		return nil
	}
	return &s.Items[s.Index]
}

// Remaining returns the number of unanswered items.
func (s *Session) Remaining() int {
	return max(0, len(s.Items)-s.Index)
}

// clone returns a copy that shares no mutable slices with s. Scores and
// feedback are immutable once created and are shared.
func (s *Session) clone() *Session {
	c := *s
	c.Items = slices.Clone(s.Items)
	c.Responses = slices.Clone(s.Responses)
	c.Scores = slices.Clone(s.Scores)
	c.Feedback = slices.Clone(s.Feedback)
	c.Adaptations = slices.Clone(s.Adaptations)
	c.GenerationNotes = slices.Clone(s.GenerationNotes)
	c.Settings.FocusAreas = slices.Clone(s.Settings.FocusAreas)
	c.Settings.ExcludedTopics = slices.Clone(s.Settings.ExcludedTopics)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// window builds the adaptation window from the last n responses.
func (s *Session) window(n int) adapt.Window {
	start := max(0, len(s.Scores)-n)
	w := make(adapt.Window, 0, len(s.Scores)-start)
	for i := start; i < len(s.Scores); i++ {
		o := adapt.Observation{ItemID: s.Items[i].ID, Percentage: s.Scores[i].Percentage}
		if budget := s.Items[i].TimeBudget; budget > 0 && s.Responses[i].Elapsed > 0 {
			o.TimeRatio = s.Responses[i].Elapsed.Minutes() / float64(budget)
		}
		w = append(w, o)
	}
	return w
}

// Summary is a lightweight view of a registered session.
type Summary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ModuleID     string    `json:"module_id"`
	Status       Status    `json:"status"`
	Index        int       `json:"index"`
	Total        int       `json:"total"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Session) summary() Summary {
	return Summary{
		ID:           s.ID,
		UserID:       s.UserID,
		ModuleID:     s.ModuleID,
		Status:       s.Status,
		Index:        s.Index,
		Total:        len(s.Items),
		LastActivity: s.LastActivity,
	}
}
