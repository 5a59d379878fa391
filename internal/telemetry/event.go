// Package telemetry carries fire-and-forget engine events to sinks.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	SessionStarted   Type = "session_started"
	ResponseScored   Type = "response_scored"
	SessionCompleted Type = "session_completed"
	SessionAbandoned Type = "session_abandoned"
	SessionFinalized Type = "session_finalized"
	ReviewApplied    Type = "review_applied"
	LLMRequest       Type = "llm_request"
	Error            Type = "error"
)

// Event is one telemetry record.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Time      time.Time      `json:"time"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	ModuleID  string         `json:"module_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(t Type, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Time:      time.Now().UTC(),
		SessionID: sessionID,
	}
}

// With returns a copy of e with an attribute set.
func (e Event) With(key string, value any) Event {
	attrs := make(map[string]any, len(e.Attrs)+1)
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attrs = attrs
	return e
}

// Float reads a numeric attribute. Integer and float values are accepted.
func (e Event) Float(key string) (float64, bool) {
	switch v := e.Attrs[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String reads a string attribute.
func (e Event) String(key string) string {
	s, _ := e.Attrs[key].(string)
	return s
}
