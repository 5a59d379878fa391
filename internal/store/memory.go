package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/assessment"
)

// MemoryStore keeps sessions and archives in process memory. It implements
// SessionStore, ArchiveStore and analytics.Baselines.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	archive  map[string]ArchiveRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]SessionRecord),
		archive:  make(map[string]ArchiveRecord),
	}
}

func (m *MemoryStore) Save(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Data = slices.Clone(rec.Data)
	m.sessions[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	rec.Data = slices.Clone(rec.Data)
	return rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Archive(_ context.Context, rec ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archive[rec.SessionID]; ok {
		return fmt.Errorf("session %s: %w", rec.SessionID, ErrAlreadyArchived)
	}
	rec.Results = slices.Clone(rec.Results)
	rec.Session = slices.Clone(rec.Session)
	m.archive[rec.SessionID] = rec
	return nil
}

func (m *MemoryStore) UpdateArchive(_ context.Context, rec ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.archive[rec.SessionID]
	if !ok {
		return fmt.Errorf("archived session %s: %w", rec.SessionID, ErrNotFound)
	}
	cur.AverageScore = rec.AverageScore
	cur.Results = slices.Clone(rec.Results)
	cur.Session = slices.Clone(rec.Session)
	m.archive[rec.SessionID] = cur
	return nil
}

func (m *MemoryStore) LoadArchive(_ context.Context, id string) (ArchiveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.archive[id]
	if !ok {
		return ArchiveRecord{}, fmt.Errorf("archived session %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) Baseline(_ context.Context, moduleID string, difficulty assessment.Difficulty) (analytics.Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var samples []float64
	for _, rec := range m.archive {
		if rec.Completed && rec.ModuleID == moduleID && rec.Difficulty == difficulty.String() {
			samples = append(samples, rec.AverageScore)
		}
	}
	return analytics.FromSamples(samples), nil
}
