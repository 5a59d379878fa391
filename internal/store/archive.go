package store

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/assessment"
)

// Archive implements ArchiveStore.
func (s *SQLStore) Archive(ctx context.Context, rec ArchiveRecord) error {
	q, args := builder().Insert(archiveTable).
		Columns("session_id", "user_id", "module_id", "difficulty", "average_score", "completed", "results", "finalized_at", "session").
		Values(rec.SessionID, rec.UserID, rec.ModuleID, rec.Difficulty, rec.AverageScore, rec.Completed, rec.Results, rec.FinalizedAt.UTC(), rec.Session).
		OnConflict(entsql.ConflictColumns("session_id"), entsql.DoNothing()).
		Query()

	var res sql.Result
	if err := s.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("archive session %s: %w", rec.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive session %s: %w", rec.SessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", rec.SessionID, ErrAlreadyArchived)
	}
	return nil
}

// LoadArchive implements ArchiveStore.
func (s *SQLStore) LoadArchive(ctx context.Context, id string) (ArchiveRecord, error) {
	q, args := builder().Select("session_id", "user_id", "module_id", "difficulty", "average_score", "completed", "results", "finalized_at", "session").
		From(entsql.Table(archiveTable)).
		Where(entsql.EQ("session_id", id)).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return ArchiveRecord{}, fmt.Errorf("query archive %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ArchiveRecord{}, fmt.Errorf("query archive %s: %w", id, err)
		}
		return ArchiveRecord{}, fmt.Errorf("archived session %s: %w", id, ErrNotFound)
	}
	var (
		rec       ArchiveRecord
		finalized sql.NullTime
	)
	err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.ModuleID, &rec.Difficulty,
		&rec.AverageScore, &rec.Completed, &rec.Results, &finalized, &rec.Session)
	if err != nil {
		return ArchiveRecord{}, fmt.Errorf("scan archive %s: %w", id, err)
	}
	rec.FinalizedAt = finalized.Time
	return rec, nil
}

// UpdateArchive implements ArchiveStore.
func (s *SQLStore) UpdateArchive(ctx context.Context, rec ArchiveRecord) error {
	q, args := builder().Update(archiveTable).
		Set("average_score", rec.AverageScore).
		Set("results", rec.Results).
		Set("session", rec.Session).
		Where(entsql.EQ("session_id", rec.SessionID)).
		Query()

	var res sql.Result
	if err := s.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("update archive %s: %w", rec.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update archive %s: %w", rec.SessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("archived session %s: %w", rec.SessionID, ErrNotFound)
	}
	return nil
}

// Baseline implements analytics.Baselines from the averages of completed
// archived sessions. Without history it returns the default baseline.
func (s *SQLStore) Baseline(ctx context.Context, moduleID string, difficulty assessment.Difficulty) (analytics.Baseline, error) {
	selector := builder().Select("average_score").
		From(entsql.Table(archiveTable)).
		Where(entsql.And(
			entsql.EQ("module_id", moduleID),
			entsql.EQ("difficulty", difficulty.String()),
			entsql.EQ("completed", true),
		)).
		OrderBy(entsql.Desc("finalized_at"))
	if s.BaselineWindow > 0 {
		selector = selector.Limit(s.BaselineWindow)
	}
	q, args := selector.Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return analytics.Baseline{}, fmt.Errorf("query baseline %s/%s: %w", moduleID, difficulty, err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return analytics.Baseline{}, fmt.Errorf("scan baseline sample: %w", err)
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return analytics.Baseline{}, fmt.Errorf("query baseline %s/%s: %w", moduleID, difficulty, err)
	}
	return analytics.FromSamples(samples), nil
}
