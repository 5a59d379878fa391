package store

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// Save implements SessionStore with an upsert keyed by session id.
func (s *SQLStore) Save(ctx context.Context, rec SessionRecord) error {
	q, args := builder().Insert(sessionsTable).
		Columns("id", "user_id", "module_id", "status", "data", "updated_at").
		Values(rec.ID, rec.UserID, rec.ModuleID, rec.Status, rec.Data, rec.UpdatedAt.UTC()).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// Load implements SessionStore.
func (s *SQLStore) Load(ctx context.Context, id string) (SessionRecord, error) {
	q, args := builder().Select("id", "user_id", "module_id", "status", "data", "updated_at").
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return SessionRecord{}, fmt.Errorf("query session %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return SessionRecord{}, fmt.Errorf("query session %s: %w", id, err)
		}
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	var (
		rec     SessionRecord
		updated sql.NullTime
	)
	if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ModuleID, &rec.Status, &rec.Data, &updated); err != nil {
		return SessionRecord{}, fmt.Errorf("scan session %s: %w", id, err)
	}
	rec.UpdatedAt = updated.Time
	return rec, nil
}

// Delete implements SessionStore.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	q, args := builder().Delete(sessionsTable).Where(entsql.EQ("id", id)).Query()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
