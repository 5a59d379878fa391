package itemgen

import (
	"slices"
	"sort"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
)

// Ranking weights.
const (
	pointsExactDifficulty = 10
	pointsPerFocusTag     = 5
	pointsSuccessRate     = 5
	pointsRating          = 3
	pointsFreshness       = 3

	successRateThreshold = 0.8
	ratingThreshold      = 4.0
)

// RankScore is the deterministic selection score of a template for a request.
func RankScore(t catalog.Template, difficulty assessment.Difficulty, focus []string, now time.Time, freshness time.Duration) int {
	score := 0
	if t.Difficulty == difficulty {
		score += pointsExactDifficulty
	}
	for _, tag := range focus {
		if t.HasTag(tag) {
			score += pointsPerFocusTag
		}
	}
	if t.Metadata.Usage.SuccessRate > successRateThreshold {
		score += pointsSuccessRate
	}
	if t.Metadata.Usage.AvgRating > ratingThreshold {
		score += pointsRating
	}
	if !t.Metadata.UpdatedAt.IsZero() && now.Sub(t.Metadata.UpdatedAt) < freshness {
		score += pointsFreshness
	}
	return score
}

type ranked struct {
	tmpl  catalog.Template
	score int
}

// rank orders templates by descending score, then by id.
func rank(templates []catalog.Template, difficulty assessment.Difficulty, focus []string, now time.Time, freshness time.Duration) []ranked {
	out := make([]ranked, len(templates))
	for i, t := range templates {
		out[i] = ranked{tmpl: t, score: RankScore(t, difficulty, focus, now, freshness)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].tmpl.ID < out[j].tmpl.ID
	})
	return out
}

// filter applies difficulty, focus, excluded topic and excluded id filters.
func filter(templates []catalog.Template, req Request, difficulty assessment.Difficulty, adjacent bool) []catalog.Template {
	var out []catalog.Template
	for _, t := range templates {
		if !difficultyMatches(t.Difficulty, difficulty, adjacent) {
			continue
		}
		if len(req.FocusTags) > 0 && !slices.ContainsFunc(req.FocusTags, t.HasTag) {
			continue
		}
		if slices.ContainsFunc(req.ExcludedTopics, t.HasTag) {
			continue
		}
		if slices.Contains(req.ExcludeTemplates, t.ID) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func difficultyMatches(have, want assessment.Difficulty, adjacent bool) bool {
	if have == want {
		return true
	}
	if !adjacent {
		return false
	}
	d := int(have) - int(want)
	return d == 1 || d == -1
}
