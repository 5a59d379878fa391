// Package adapt holds the trigger/action rules evaluated after each response.
package adapt

import (
	"slices"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Action is an adaptation proposed by a rule.
type Action string

const (
	ActionAdditionalHints      Action = "provide_additional_hints"
	ActionIncreaseDifficulty   Action = "increase_difficulty"
	ActionDecreaseDifficulty   Action = "decrease_difficulty"
	ActionSimplifyRequirements Action = "simplify_requirements"
	ActionEdgeCases            Action = "edge_cases"
)

// Observation is one scored response as seen by the rules.
type Observation struct {
	ItemID     string
	Percentage int

	// TimeRatio is elapsed time over the item's budget. Zero when unknown.
	TimeRatio float64
}

// Window is the ordered history of a session, oldest first.
type Window []Observation

// Last returns the n most recent observations, or nil when fewer exist.
func (w Window) Last(n int) Window {
	if n <= 0 || len(w) < n {
		return nil
	}
	return w[len(w)-n:]
}

// Average is the mean percentage of the window.
func (w Window) Average() float64 {
	if len(w) == 0 {
		return 0
	}
	sum := 0
	for _, o := range w {
		sum += o.Percentage
	}
	return float64(sum) / float64(len(w))
}

// Rule is a named trigger with the actions it proposes.
type Rule struct {
	Name    string
	Trigger func(Window) bool
	Actions []Action

	// Difficulty is the change proposed for the next item: -1, 0 or +1.
	Difficulty int
}

// Decision is the combined outcome of all triggered rules.
type Decision struct {
	Triggered []string `json:"triggered,omitempty"`
	Actions   []Action `json:"actions,omitempty"`

	// DifficultyDelta is the net proposed change, clamped to [-1,1].
	DifficultyDelta int `json:"difficulty_delta"`
}

// Changed reports whether any rule fired.
func (d Decision) Changed() bool {
	return len(d.Triggered) > 0
}

// Next applies the difficulty delta to a level.
func (d Decision) Next(level assessment.Difficulty) assessment.Difficulty {
	switch {
	case d.DifficultyDelta > 0:
		return level.Higher()
	case d.DifficultyDelta < 0:
		return level.Lower()
	}
	return level
}

// DefaultRules is the standard rule table.
var DefaultRules = []Rule{
	{
		Name: "low_score_pattern",
		Trigger: func(w Window) bool {
			last := w.Last(2)
			return last != nil && all(last, func(o Observation) bool { return o.Percentage < 50 })
		},
		Actions:    []Action{ActionAdditionalHints, ActionDecreaseDifficulty},
		Difficulty: -1,
	},
	{
		Name: "high_score_pattern",
		Trigger: func(w Window) bool {
			last := w.Last(2)
			return last != nil && all(last, func(o Observation) bool { return o.Percentage >= 85 })
		},
		Actions:    []Action{ActionIncreaseDifficulty},
		Difficulty: 1,
	},
	{
		Name: "time_pressure",
		Trigger: func(w Window) bool {
			last := w.Last(1)
			return last != nil && last[0].TimeRatio > 0 && last[0].TimeRatio < 0.25 && last[0].Percentage < 60
		},
		Actions: []Action{ActionSimplifyRequirements},
	},
	{
		Name: "sustained_excellence",
		Trigger: func(w Window) bool {
			return len(w) >= 3 && w.Average() >= 90
		},
		Actions: []Action{ActionEdgeCases},
	},
}

func all(w Window, pred func(Observation) bool) bool {
	for _, o := range w {
		if !pred(o) {
			return false
		}
	}
	return true
}

// Evaluate runs every rule against the window. Rules are independent; the
// actions of all triggered rules are combined in table order.
func Evaluate(rules []Rule, w Window) Decision {
	var d Decision
	for _, r := range rules {
		if !r.Trigger(w) {
			continue
		}
		d.Triggered = append(d.Triggered, r.Name)
		for _, a := range r.Actions {
			if !slices.Contains(d.Actions, a) {
				d.Actions = append(d.Actions, a)
			}
		}
		d.DifficultyDelta += r.Difficulty
	}
	d.DifficultyDelta = min(max(d.DifficultyDelta, -1), 1)
	return d
}
