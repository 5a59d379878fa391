package session

import (
	"context"

	"github.com/abhisek/riskdrill/internal/analytics"
)

// analyticsInput maps a session onto the analytics snapshot. Only answered
// items count as attempts.
func analyticsInput(s *Session) analytics.Input {
	attempts := make([]analytics.Attempt, 0, len(s.Scores))
	for i, score := range s.Scores {
		attempts = append(attempts, analytics.Attempt{
			ItemID:  s.Items[i].ID,
			Score:   score,
			Elapsed: s.Responses[i].Elapsed,
			Budget:  s.Items[i].TimeBudget,
		})
	}
	return analytics.Input{
		ModuleID:       s.ModuleID,
		Difficulty:     s.StartLevel,
		TotalQuestions: len(s.Items),
		Completed:      s.Status == StatusCompleted,
		Attempts:       attempts,
		TotalTime:      s.Elapsed,
	}
}

// progress computes the running snapshot without touching baselines.
func progress(s *Session) Progress {
	r := analytics.Compute(context.Background(), analyticsInput(s), nil)
	return Progress{Metrics: r.Detailed.Metrics, Trend: r.Detailed.Trend}
}

// results computes the finalized summary of a session.
func (o *Orchestrator) results(ctx context.Context, s *Session) analytics.Results {
	r := analytics.Compute(ctx, analyticsInput(s), o.baselines)
	r.SessionID = s.ID
	r.UserID = s.UserID
	r.GeneratedAt = o.now()
	return r
}
