// Package analytics aggregates session score sequences into results.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Attempt is one scored item of a session.
type Attempt struct {
	ItemID  string
	Score   *assessment.Score
	Elapsed time.Duration

	// Budget is the item's time budget in minutes.
	Budget int
}

// Input is the session snapshot analytics works from.
type Input struct {
	ModuleID       string
	Difficulty     assessment.Difficulty
	TotalQuestions int
	Completed      bool
	Attempts       []Attempt
	TotalTime      time.Duration
}

// Performance band.
type Performance string

const (
	Excellent        Performance = "excellent"
	Good             Performance = "good"
	Satisfactory     Performance = "satisfactory"
	NeedsImprovement Performance = "needs_improvement"
)

// PerformanceFor maps an average percentage to a band.
func PerformanceFor(avg float64) Performance {
	switch {
	case avg >= 80:
		return Excellent
	case avg >= 70:
		return Good
	case avg >= 60:
		return Satisfactory
	default:
		return NeedsImprovement
	}
}

// Trend classification.
type Trend string

const (
	Improving Trend = "improving"
	Stable    Trend = "stable"
	Declining Trend = "declining"
)

// trendThreshold is the mean consecutive delta, in points, that separates
// a trend from noise.
const trendThreshold = 5.0

// TrendOf classifies a score sequence by its mean consecutive delta.
func TrendOf(percentages []int) Trend {
	if len(percentages) < 2 {
		return Stable
	}
	var sum float64
	for i := 1; i < len(percentages); i++ {
		sum += float64(percentages[i] - percentages[i-1])
	}
	mean := sum / float64(len(percentages)-1)
	switch {
	case mean > trendThreshold:
		return Improving
	case mean < -trendThreshold:
		return Declining
	default:
		return Stable
	}
}

// Metrics are the session performance metrics.
type Metrics struct {
	Average        float64 `json:"average"`
	Progression    []int   `json:"progression"`
	TimeEfficiency float64 `json:"time_efficiency"`
	Accuracy       float64 `json:"accuracy"`
	CompletionRate float64 `json:"completion_rate"`
}

// CriterionInsight is the average ratio achieved on a criterion, in percent.
type CriterionInsight struct {
	Criterion string  `json:"criterion"`
	Average   float64 `json:"average"`
}

// Comparative places the session against historical baselines.
type Comparative struct {
	PeerPercentile  int     `json:"peer_percentile"`
	IndustryAverage float64 `json:"industry_average"`
	TopPerformer    float64 `json:"top_performer"`
	Minimum         float64 `json:"minimum"`
}

// Certification is the eligibility outcome of a session.
type Certification struct {
	Eligible bool   `json:"eligible"`
	Level    string `json:"level,omitempty"`
	Reason   string `json:"reason"`
}

// Summary is the headline of a session result.
type Summary struct {
	TotalQuestions     int                   `json:"total_questions"`
	CompletedQuestions int                   `json:"completed_questions"`
	AverageScore       float64               `json:"average_score"`
	TotalTime          time.Duration         `json:"total_time"`
	Difficulty         assessment.Difficulty `json:"difficulty"`
	OverallPerformance Performance           `json:"overall_performance"`
}

// Detailed is the analytic breakdown of a session.
type Detailed struct {
	Metrics     Metrics            `json:"metrics"`
	Trend       Trend              `json:"trend"`
	Strengths   []CriterionInsight `json:"strengths,omitempty"`
	Weaknesses  []CriterionInsight `json:"weaknesses,omitempty"`
	Comparative Comparative        `json:"comparative"`
}

// Results is the finalized summary of a session.
type Results struct {
	SessionID       string        `json:"session_id"`
	UserID          string        `json:"user_id"`
	ModuleID        string        `json:"module_id"`
	Summary         Summary       `json:"summary"`
	Detailed        Detailed      `json:"detailed"`
	Recommendations []string      `json:"recommendations,omitempty"`
	NextSteps       []string      `json:"next_steps,omitempty"`
	Certification   Certification `json:"certification"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Thresholds.
const (
	accuracyThreshold  = 60
	strengthThreshold  = 80.0
	weaknessThreshold  = 50.0
	certificationFloor = 70.0
)

// Compute aggregates a session snapshot. Baseline failures fall back to
// DefaultBaseline.
func Compute(ctx context.Context, in Input, baselines Baselines) Results {
	percentages := make([]int, 0, len(in.Attempts))
	for _, a := range in.Attempts {
		if a.Score != nil {
			percentages = append(percentages, a.Score.Percentage)
		}
	}

	m := Metrics{
		Average:        round1(mean(percentages)),
		Progression:    percentages,
		TimeEfficiency: round2(timeEfficiency(in.Attempts)),
		Accuracy:       round2(accuracy(percentages)),
	}
	if in.TotalQuestions > 0 {
		m.CompletionRate = round2(float64(len(percentages)) / float64(in.TotalQuestions))
	}

	baseline := DefaultBaseline()
	if baselines != nil {
		b, err := baselines.Baseline(ctx, in.ModuleID, in.Difficulty)
		if err != nil {
			slog.Warn("baseline unavailable, using defaults", "module", in.ModuleID, "error", err)
		} else {
			baseline = b
		}
	}

	strengths, weaknesses := criterionInsights(in.Attempts)
	detailed := Detailed{
		Metrics:    m,
		Trend:      TrendOf(percentages),
		Strengths:  strengths,
		Weaknesses: weaknesses,
		Comparative: Comparative{
			PeerPercentile:  baseline.PeerPercentile(m.Average),
			IndustryAverage: baseline.Average,
			TopPerformer:    baseline.TopPerformer,
			Minimum:         baseline.Minimum,
		},
	}

	perf := PerformanceFor(m.Average)
	return Results{
		ModuleID: in.ModuleID,
		Summary: Summary{
			TotalQuestions:     in.TotalQuestions,
			CompletedQuestions: len(percentages),
			AverageScore:       m.Average,
			TotalTime:          in.TotalTime,
			Difficulty:         in.Difficulty,
			OverallPerformance: perf,
		},
		Detailed:        detailed,
		Recommendations: recommendations(detailed),
		NextSteps:       nextSteps(perf, in.Difficulty),
		Certification:   certify(in, m.Average),
	}
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// timeEfficiency averages min(1, budget/elapsed) over attempts with known
// timing. Sessions without timing data score 1.
func timeEfficiency(attempts []Attempt) float64 {
	var sum float64
	n := 0
	for _, a := range attempts {
		if a.Budget <= 0 || a.Elapsed <= 0 {
			continue
		}
		sum += math.Min(1, float64(a.Budget)/a.Elapsed.Minutes())
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// accuracy is the share of attempts scoring at least accuracyThreshold.
func accuracy(percentages []int) float64 {
	if len(percentages) == 0 {
		return 0
	}
	ok := 0
	for _, p := range percentages {
		if p >= accuracyThreshold {
			ok++
		}
	}
	return float64(ok) / float64(len(percentages))
}

// criterionInsights averages earned/max per criterion name across the
// session. Pending and adjustment lines are ignored.
func criterionInsights(attempts []Attempt) (strengths, weaknesses []CriterionInsight) {
	type acc struct {
		sum float64
		n   int
	}
	by := make(map[string]*acc)
	for _, a := range attempts {
		if a.Score == nil {
			continue
		}
		for _, line := range a.Score.Breakdown {
			if line.Pending || line.Max <= 0 {
				continue
			}
			name := line.Name
			if name == "" {
				name = line.CriterionID
			}
			if by[name] == nil {
				by[name] = &acc{}
			}
			by[name].sum += 100 * line.Earned / line.Max
			by[name].n++
		}
	}
	for name, a := range by {
		avg := round1(a.sum / float64(a.n))
		switch {
		case avg >= strengthThreshold:
			strengths = append(strengths, CriterionInsight{Criterion: name, Average: avg})
		case avg < weaknessThreshold:
			weaknesses = append(weaknesses, CriterionInsight{Criterion: name, Average: avg})
		}
	}
	sort.Slice(strengths, func(i, j int) bool {
		if strengths[i].Average != strengths[j].Average {
			return strengths[i].Average > strengths[j].Average
		}
		return strengths[i].Criterion < strengths[j].Criterion
	})
	sort.Slice(weaknesses, func(i, j int) bool {
		if weaknesses[i].Average != weaknesses[j].Average {
			return weaknesses[i].Average < weaknesses[j].Average
		}
		return weaknesses[i].Criterion < weaknesses[j].Criterion
	})
	return strengths, weaknesses
}

func certify(in Input, avg float64) Certification {
	switch {
	case !in.Completed:
		return Certification{Reason: "session not completed"}
	case avg < certificationFloor:
		return Certification{Reason: fmt.Sprintf("average %.1f%% is below the %.0f%% threshold", avg, certificationFloor)}
	}
	for _, a := range in.Attempts {
		if a.Score != nil && a.Score.HasPending {
			return Certification{Reason: "criteria are pending expert review"}
		}
	}
	level := "practitioner"
	switch {
	case avg >= 90:
		level = "expert"
	case avg >= 80:
		level = "advanced"
	}
	return Certification{Eligible: true, Level: level, Reason: fmt.Sprintf("average %.1f%% on %s", avg, in.Difficulty)}
}

func recommendations(d Detailed) []string {
	var out []string
	for _, w := range d.Weaknesses {
		out = append(out, fmt.Sprintf("Practice %s (average %.0f%%).", w.Criterion, w.Average))
	}
	switch d.Trend {
	case Declining:
		out = append(out, "Scores declined during the session; take breaks between exercises.")
	case Improving:
		out = append(out, "Scores improved during the session; keep the same preparation.")
	}
	if d.Metrics.TimeEfficiency < 0.8 {
		out = append(out, "Work on time management; several items exceeded their budget.")
	}
	if d.Comparative.PeerPercentile < 25 {
		out = append(out, "Review the workshop fundamentals; results are below most peers.")
	}
	return out
}

func nextSteps(p Performance, d assessment.Difficulty) []string {
	switch p {
	case Excellent:
		if d < assessment.Master {
			return []string{fmt.Sprintf("Move on to %s exercises.", d.Higher())}
		}
		return []string{"Mentor other practitioners on this workshop."}
	case Good:
		return []string{"Consolidate the weak criteria, then move to the next workshop."}
	case Satisfactory:
		return []string{"Repeat this workshop at the same difficulty."}
	default:
		if d > assessment.Intermediate {
			return []string{fmt.Sprintf("Retry this workshop at %s level.", d.Lower())}
		}
		return []string{"Review the workshop material and retry with hints."}
	}
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
