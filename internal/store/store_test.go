package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so we skip journal_mode here.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

// sessionStoreContract runs the SessionStore behavior every backend shares.
func sessionStoreContract(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load missing: got %v, want ErrNotFound", err)
	}

	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	rec := SessionRecord{ID: "s1", UserID: "u1", ModuleID: "workshop-1", Status: "active", Data: []byte(`{"index":0}`), UpdatedAt: now}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec.Status = "completed"
	rec.Data = []byte(`{"index":2}`)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != "completed" || string(got.Data) != `{"index":2}` {
		t.Errorf("load = %+v, want the second save", got)
	}
	if got.UserID != "u1" || got.ModuleID != "workshop-1" {
		t.Errorf("indexed fields lost: %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, now)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "s1"); err != nil {
		t.Errorf("deleting twice should be a no-op: %v", err)
	}
}

func TestSQLStore_Sessions(t *testing.T) {
	sessionStoreContract(t, openTestStore(t))
}

func TestMemoryStore_Sessions(t *testing.T) {
	sessionStoreContract(t, NewMemoryStore())
}

func TestRedisSessionStore_Sessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sessionStoreContract(t, NewRedisSessionStoreFromClient(client, time.Hour))
}

func TestRedisSessionStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := NewRedisSessionStoreFromClient(client, 10*time.Minute)
	ctx := context.Background()

	if err := s.Save(ctx, SessionRecord{ID: "s1", Data: []byte("{}")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("riskdrill:session:s1"); ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := s.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: got %v, want ErrNotFound", err)
	}
}

func TestNewRedisSessionStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisSessionStore(ctx, addr, "", 0, time.Hour); err == nil {
		t.Fatal("expected connection error")
	}
}

// testArchive runs the ArchiveStore behavior shared by the SQL and memory
// stores.
func testArchive(t *testing.T, archive ArchiveStore) {
	t.Helper()
	ctx := context.Background()
	rec := ArchiveRecord{
		SessionID:    "s1",
		UserID:       "u1",
		ModuleID:     "workshop-2",
		Difficulty:   "expert",
		AverageScore: 82.5,
		Completed:    true,
		Results:      []byte(`{"ok":true}`),
		Session:      []byte(`{"id":"s1"}`),
		FinalizedAt:  time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}
	if err := archive.Archive(ctx, rec); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := archive.Archive(ctx, rec); !errors.Is(err, ErrAlreadyArchived) {
		t.Fatalf("second archive: got %v, want ErrAlreadyArchived", err)
	}

	got, err := archive.LoadArchive(ctx, "s1")
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	if got.AverageScore != 82.5 || !got.Completed || string(got.Results) != `{"ok":true}` {
		t.Errorf("load archive = %+v", got)
	}
	if _, err := archive.LoadArchive(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load missing archive: got %v, want ErrNotFound", err)
	}
	if string(got.Session) != `{"id":"s1"}` {
		t.Errorf("session snapshot = %s", got.Session)
	}

	rec.AverageScore = 91
	rec.Results = []byte(`{"reviewed":true}`)
	if err := archive.UpdateArchive(ctx, rec); err != nil {
		t.Fatalf("update archive: %v", err)
	}
	got, _ = archive.LoadArchive(ctx, "s1")
	if got.AverageScore != 91 || string(got.Results) != `{"reviewed":true}` || got.UserID != "u1" {
		t.Errorf("updated archive = %+v", got)
	}
	rec.SessionID = "missing"
	if err := archive.UpdateArchive(ctx, rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing archive: got %v, want ErrNotFound", err)
	}
}

func TestSQLStore_Archive(t *testing.T) {
	testArchive(t, openTestStore(t))
}

func TestMemoryStore_Archive(t *testing.T) {
	testArchive(t, NewMemoryStore())
}

func TestSQLStore_Baseline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b, err := s.Baseline(ctx, "workshop-1", assessment.Advanced)
	if err != nil {
		t.Fatalf("baseline (empty): %v", err)
	}
	if b.Average != 65 || len(b.Samples) != 0 {
		t.Errorf("empty history should give the default baseline, got %+v", b)
	}

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, avg := range []float64{40, 60, 80} {
		err := s.Archive(ctx, ArchiveRecord{
			SessionID:    fmt.Sprintf("s%d", i),
			ModuleID:     "workshop-1",
			Difficulty:   "advanced",
			AverageScore: avg,
			Completed:    true,
			FinalizedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("archive %d: %v", i, err)
		}
	}
	// Abandoned sessions and other difficulties are excluded.
	_ = s.Archive(ctx, ArchiveRecord{SessionID: "abandoned", ModuleID: "workshop-1", Difficulty: "advanced", AverageScore: 5, FinalizedAt: base})
	_ = s.Archive(ctx, ArchiveRecord{SessionID: "other", ModuleID: "workshop-1", Difficulty: "master", AverageScore: 99, Completed: true, FinalizedAt: base})

	b, err = s.Baseline(ctx, "workshop-1", assessment.Advanced)
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if len(b.Samples) != 3 {
		t.Fatalf("samples = %v, want 3", b.Samples)
	}
	if b.Average != 60 || b.Minimum != 40 || b.TopPerformer != 80 {
		t.Errorf("baseline = %+v", b)
	}

	m := NewMemoryStore()
	_ = m.Archive(ctx, ArchiveRecord{SessionID: "x", ModuleID: "workshop-1", Difficulty: "advanced", AverageScore: 70, Completed: true})
	mb, _ := m.Baseline(ctx, "workshop-1", assessment.Advanced)
	if mb.Average != 70 {
		t.Errorf("memory baseline average = %v, want 70", mb.Average)
	}
}

func TestSQLStore_Events(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, typ := range []telemetry.Type{telemetry.SessionStarted, telemetry.ResponseScored, telemetry.SessionCompleted} {
		e := telemetry.NewEvent(typ, "s1").With("index", i)
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("record %s: %v", typ, err)
		}
	}
	if err := s.RecordEvent(ctx, telemetry.NewEvent(telemetry.SessionStarted, "s2")); err != nil {
		t.Fatalf("record: %v", err)
	}

	all, err := s.ListEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("events = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Sequence <= all[i-1].Sequence {
			t.Errorf("sequence not increasing at %d: %d <= %d", i, all[i].Sequence, all[i-1].Sequence)
		}
	}
	if v, ok := all[1].Attrs["index"].(float64); !ok || v != 1 {
		t.Errorf("attrs = %v", all[1].Attrs)
	}

	started, err := s.ListEvents(ctx, QueryOpts{Type: string(telemetry.SessionStarted)})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(started) != 2 {
		t.Errorf("session_started events = %d, want 2", len(started))
	}

	page, err := s.ListEvents(ctx, QueryOpts{SessionID: "s1", After: all[0].Sequence, Limit: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].Type != string(telemetry.ResponseScored) {
		t.Errorf("page = %+v", page)
	}
}
