package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/riskdrill/internal/telemetry"
)

// sequenceCounter assigns the global monotonic sequence shared by stored
// events. Event ids are UUIDs, so the sequence is what establishes ordering
// and what "after" pagination in ListEvents runs on.
//
// Uses raw SQL outside the statement builder because there is no
// database-level atomic counter abstraction. The mutex serializes within the
// process; the RETURNING clause makes the increment atomic at the database
// level.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

// newSequenceCounter creates a counter and ensures the tracking table exists.
func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{db: db}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := sc.db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// RecordEvent implements telemetry.Recorder.
func (s *SQLStore) RecordEvent(ctx context.Context, e telemetry.Event) error {
	seqNum, err := s.seq.Next(ctx)
	if err != nil {
		return err
	}

	var attrs []byte
	if len(e.Attrs) > 0 {
		if attrs, err = json.Marshal(e.Attrs); err != nil {
			return fmt.Errorf("marshal event attrs: %w", err)
		}
	}

	q, args := builder().Insert(eventsTable).
		Columns("id", "sequence", "type", "session_id", "user_id", "time", "attrs").
		Values(e.ID, seqNum, string(e.Type), e.SessionID, e.UserID, e.Time.UTC(), attrs).
		Query()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("save %s event: %w", e.Type, err)
	}
	return nil
}

// ListEvents returns stored events in sequence order.
func (s *SQLStore) ListEvents(ctx context.Context, opts QueryOpts) ([]StoredEvent, error) {
	var preds []*entsql.Predicate
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("time", opts.From.UTC()))
	}
	if opts.Type != "" {
		preds = append(preds, entsql.EQ("type", opts.Type))
	}
	if opts.SessionID != "" {
		preds = append(preds, entsql.EQ("session_id", opts.SessionID))
	}

	selector := builder().Select("sequence", "id", "type", "session_id", "user_id", "time", "attrs").
		From(entsql.Table(eventsTable)).
		OrderBy("sequence")
	if len(preds) > 0 {
		selector = selector.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		selector = selector.Limit(opts.Limit)
	}
	q, args := selector.Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev    StoredEvent
			at    sql.NullTime
			attrs []byte
		)
		if err := rows.Scan(&ev.Sequence, &ev.ID, &ev.Type, &ev.SessionID, &ev.UserID, &at, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time = at.Time
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &ev.Attrs); err != nil {
				return nil, fmt.Errorf("decode event %s attrs: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}
