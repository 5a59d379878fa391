package feedback

import (
	"slices"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/profile"
)

// Effectiveness is an internal estimate of how useful a feedback will be.
// All fields are in [0,1].
type Effectiveness struct {
	Clarity       float64 `json:"clarity"`
	Relevance     float64 `json:"relevance"`
	Actionability float64 `json:"actionability"`
	Motivation    float64 `json:"motivation"`
	Overall       float64 `json:"overall"`
}

// Predict estimates effectiveness from response quality, persona fit and
// the amount of actionable content.
func Predict(c Content, p Persona, moduleID string, score *assessment.Score) Effectiveness {
	e := Effectiveness{
		Clarity: clamp01(0.7 + 0.3*score.Validation.Quality),
	}

	w, _ := profile.Workshop(moduleID)
	switch {
	case slices.Contains(p.Expertise, w.Focus):
		e.Relevance = 0.95
	case p.ID == PersonaLaurent:
		e.Relevance = 0.85
	default:
		e.Relevance = 0.7
	}

	actions := len(c.Immediate.UrgentActions) + len(c.Immediate.QuickWins) + len(c.Detailed.Improvements)
	e.Actionability = clamp01(0.5 + 0.1*float64(actions))
	if actions == 0 && score.Percentage >= 80 {
		e.Actionability = 0.8
	}

	band := BandFor(score.Percentage)
	switch {
	case p.Style == StyleInspiring && band == BandExcellent:
		e.Motivation = 0.95
	case p.Style == StyleSupportive && band == BandWeak:
		e.Motivation = 0.85
	case p.Style == StyleDirect && band == BandWeak:
		e.Motivation = 0.6
	default:
		e.Motivation = 0.75
	}

	e.Overall = (e.Clarity + e.Relevance + e.Actionability + e.Motivation) / 4
	return e
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}
