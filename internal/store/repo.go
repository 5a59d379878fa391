package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyArchived is returned when archiving a session id twice.
	ErrAlreadyArchived = errors.New("session already archived")
)

// SessionRecord is the persisted form of an active session. Data holds the
// serialized session; the other fields are indexed copies.
type SessionRecord struct {
	ID        string
	UserID    string
	ModuleID  string
	Status    string
	Data      []byte
	UpdatedAt time.Time
}

// SessionStore persists active sessions.
type SessionStore interface {
	Save(ctx context.Context, rec SessionRecord) error

	// Load returns ErrNotFound when id is unknown.
	Load(ctx context.Context, id string) (SessionRecord, error)

	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
}

// ArchiveRecord is a finalized session.
type ArchiveRecord struct {
	SessionID    string
	UserID       string
	ModuleID     string
	Difficulty   string
	AverageScore float64
	Completed    bool
	Results      []byte
	// Session is the final session snapshot. Expert reviews rescore it.
	Session     []byte
	FinalizedAt time.Time
}

// ArchiveStore keeps finalized sessions.
type ArchiveStore interface {
	// Archive returns ErrAlreadyArchived when the session id exists.
	Archive(ctx context.Context, rec ArchiveRecord) error

	// LoadArchive returns ErrNotFound when id is unknown.
	LoadArchive(ctx context.Context, id string) (ArchiveRecord, error)

	// UpdateArchive replaces the average, results and session snapshot of
	// an archived session. It returns ErrNotFound when the id is unknown.
	UpdateArchive(ctx context.Context, rec ArchiveRecord) error
}

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit     int       // max results (0 = unlimited)
	After     int64     // sequence > After
	From      time.Time // time >= From
	Type      string    // exact event type
	SessionID string
}

// StoredEvent is a telemetry event read back from storage.
type StoredEvent struct {
	Sequence  int64
	ID        string
	Type      string
	SessionID string
	UserID    string
	Time      time.Time
	Attrs     map[string]any
}
