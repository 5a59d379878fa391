package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/store"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

// ReviewOutcome is the state after an expert review.
type ReviewOutcome struct {
	Score *assessment.Score `json:"score"`

	// Results are the recomputed results of a finalized session. Nil while
	// the session is not finalized; Finalize picks the review up.
	Results *analytics.Results `json:"results,omitempty"`
}

// Review settles a pending criterion of the response at itemIndex with an
// expert verdict. Sessions not yet finalized are updated in place. Finalized
// sessions are rescored from their archived snapshot and their archived
// results, certification included, are recomputed.
func (o *Orchestrator) Review(ctx context.Context, sessionID string, itemIndex int, r scoring.Review) (*ReviewOutcome, error) {
	e, err := o.acquire(ctx, sessionID)
	if errors.Is(err, ErrAlreadyFinalized) {
		return o.reviewArchived(ctx, sessionID, itemIndex, r)
	}
	if err != nil {
		return nil, err
	}
	if e.finalized {
		e.mu.Unlock()
		return o.reviewArchived(ctx, sessionID, itemIndex, r)
	}
	defer e.mu.Unlock()

	if e.s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	s := e.s
	score, err := applyReview(s, itemIndex, r)
	if err != nil {
		return nil, err
	}
	s.Progress = progress(s)
	o.persist(ctx, s)
	o.emitReview(s, itemIndex, r, score)
	return &ReviewOutcome{Score: score}, nil
}

func (o *Orchestrator) reviewArchived(ctx context.Context, sessionID string, itemIndex int, r scoring.Review) (*ReviewOutcome, error) {
	o.reviewMu.Lock()
	defer o.reviewMu.Unlock()

	rec, err := o.archive.LoadArchive(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(rec.Session) == 0 {
		return nil, fmt.Errorf("session %s was archived without a snapshot: %w", sessionID, ErrNoSuchResponse)
	}
	var s Session
	if err := json.Unmarshal(rec.Session, &s); err != nil {
		return nil, fmt.Errorf("decode archived session %s: %w", sessionID, err)
	}

	score, err := applyReview(&s, itemIndex, r)
	if err != nil {
		return nil, err
	}
	s.Progress = progress(&s)
	res := o.results(ctx, &s)

	snapshot, err := json.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	rec.AverageScore = res.Summary.AverageScore
	rec.Results = data
	rec.Session = snapshot
	if err := o.archive.UpdateArchive(ctx, rec); err != nil {
		o.sink.Emit(o.event(telemetry.Error, &s, "op", "review", "error", err.Error()))
		return nil, fmt.Errorf("update archive of %s: %w", sessionID, err)
	}

	slog.Info("archived session rescored", "session_id", sessionID, "certified", res.Certification.Eligible)
	o.emitReview(&s, itemIndex, r, score)
	return &ReviewOutcome{Score: score, Results: &res}, nil
}

func applyReview(s *Session, itemIndex int, r scoring.Review) (*assessment.Score, error) {
	if itemIndex < 0 || itemIndex >= len(s.Scores) || s.Scores[itemIndex] == nil {
		return nil, fmt.Errorf("session %s item %d: %w", s.ID, itemIndex, ErrNoSuchResponse)
	}
	// Scores are shared with session copies, so the review edits a copy.
	score := cloneScore(s.Scores[itemIndex])
	if err := scoring.ApplyReview(score, r); err != nil {
		return nil, err
	}
	s.Scores[itemIndex] = score
	return score, nil
}

func (o *Orchestrator) emitReview(s *Session, itemIndex int, r scoring.Review, score *assessment.Score) {
	o.sink.Emit(o.event(telemetry.ReviewApplied, s,
		"item_id", score.ItemID,
		"item_index", itemIndex,
		"criterion", r.CriterionID,
		"reviewer", r.Reviewer,
		telemetry.AttrPercentage, score.Percentage,
		"pending", score.HasPending,
	))
}

func cloneScore(s *assessment.Score) *assessment.Score {
	c := *s
	c.Breakdown = append([]assessment.CriterionScore(nil), s.Breakdown...)
	return &c
}
