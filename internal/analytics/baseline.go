package analytics

import (
	"context"
	"sort"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Baseline is the historical reference for a module and difficulty.
type Baseline struct {
	Average      float64 `json:"average"`
	TopPerformer float64 `json:"top_performer"`
	Minimum      float64 `json:"minimum"`

	// Samples holds historical session averages when available; it enables
	// an exact peer percentile.
	Samples []float64 `json:"-"`
}

// DefaultBaseline is used when no history exists.
func DefaultBaseline() Baseline {
	return Baseline{Average: 65, TopPerformer: 85, Minimum: 50}
}

// Baselines provides historical references.
type Baselines interface {
	Baseline(ctx context.Context, moduleID string, difficulty assessment.Difficulty) (Baseline, error)
}

// StaticBaselines always returns the same baseline.
type StaticBaselines struct {
	B Baseline
}

func (s StaticBaselines) Baseline(context.Context, string, assessment.Difficulty) (Baseline, error) {
	return s.B, nil
}

// FromSamples derives a baseline from historical session averages. It
// returns the default baseline when samples is empty.
func FromSamples(samples []float64) Baseline {
	if len(samples) == 0 {
		return DefaultBaseline()
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return Baseline{
		Average:      sum / float64(len(sorted)),
		TopPerformer: percentileValue(sorted, 0.9),
		Minimum:      sorted[0],
		Samples:      sorted,
	}
}

// percentileValue returns the nearest-rank value at q in a sorted slice.
func percentileValue(sorted []float64, q float64) float64 {
	idx := int(q*float64(len(sorted))+0.5) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

// PeerPercentile places a score among peers. With samples it is the share
// of samples strictly below the score; otherwise it interpolates between
// minimum (10), average (50) and top performer (90).
func (b Baseline) PeerPercentile(score float64) int {
	if len(b.Samples) > 0 {
		below := sort.SearchFloat64s(b.Samples, score)
		return min(99, below*100/len(b.Samples))
	}
	lerp := func(x, x0, x1, y0, y1 float64) float64 {
		if x1 <= x0 {
			return y1
		}
		return y0 + (x-x0)*(y1-y0)/(x1-x0)
	}
	var p float64
	switch {
	case score < b.Minimum:
		p = lerp(score, 0, b.Minimum, 0, 10)
	case score < b.Average:
		p = lerp(score, b.Minimum, b.Average, 10, 50)
	case score < b.TopPerformer:
		p = lerp(score, b.Average, b.TopPerformer, 50, 90)
	default:
		p = lerp(score, b.TopPerformer, 100, 90, 99)
	}
	return min(max(int(p), 0), 99)
}
