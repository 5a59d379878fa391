// Package session owns the assessment session state machine: it starts
// sessions, routes responses through scoring, feedback and adaptation, and
// finalizes sessions into results.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/riskdrill/internal/adapt"
	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/feedback"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/store"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

// ErrInvalidSettings is returned by Start for unusable session settings.
var ErrInvalidSettings = errors.New("invalid session settings")

// End reasons recorded on abandoned sessions.
const (
	ReasonUser      = "user"
	ReasonIdle      = "idle_timeout"
	ReasonTimeLimit = "time_limit"
)

// FeedbackComposer builds feedback for a scored response.
type FeedbackComposer interface {
	Compose(item *assessment.Item, resp *assessment.Response, score *assessment.Score, p profile.Profile) *feedback.Feedback
}

// ProfileResolver fetches a user's profile when a caller passes none.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, userID string) (profile.Profile, error)
}

// Deps are the collaborators of an Orchestrator. Generator and Scorer are
// required; the rest have in-memory or no-op defaults.
type Deps struct {
	Generator itemgen.Generator
	Scorer    scoring.Scorer
	Composer  FeedbackComposer
	Rules     []adapt.Rule
	Baselines analytics.Baselines
	Sessions  store.SessionStore
	Archive   store.ArchiveStore
	Profiles  ProfileResolver
	Telemetry telemetry.Sink
}

// Outcome is the result of processing one response.
type Outcome struct {
	Score *assessment.Score `json:"score"`

	// Feedback is nil when the session does not use real-time feedback.
	Feedback *feedback.Feedback `json:"feedback,omitempty"`

	// NextItem is the item to answer next; for a partial response it is
	// the same item again.
	NextItem        *assessment.Item `json:"next_item,omitempty"`
	SessionComplete bool             `json:"session_complete"`
	Adaptations     []adapt.Action   `json:"adaptations,omitempty"`
	Triggered       []string         `json:"triggered,omitempty"`
}

// Orchestrator runs assessment sessions.
type Orchestrator struct {
	generator itemgen.Generator
	scorer    scoring.Scorer
	composer  FeedbackComposer
	rules     []adapt.Rule
	baselines analytics.Baselines
	sessions  store.SessionStore
	archive   store.ArchiveStore
	profiles  ProfileResolver
	sink      telemetry.Sink
	cfg       Config

	reg   *registry
	now   func() time.Time
	newID func() string

	// reviewMu serializes reviews of archived sessions.
	reviewMu sync.Mutex
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDFunc overrides session id generation.
func WithIDFunc(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if deps.Generator == nil || deps.Scorer == nil {
		return nil, errors.New("session: generator and scorer are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	o := &Orchestrator{
		generator: deps.Generator,
		scorer:    deps.Scorer,
		composer:  deps.Composer,
		rules:     deps.Rules,
		baselines: deps.Baselines,
		sessions:  deps.Sessions,
		archive:   deps.Archive,
		profiles:  deps.Profiles,
		sink:      deps.Telemetry,
		cfg:       cfg,
		reg:       newRegistry(cfg.MaxActive),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if o.composer == nil {
		o.composer = feedback.NewComposer()
	}
	if o.rules == nil {
		o.rules = adapt.DefaultRules
	}
	if o.sessions == nil || o.archive == nil {
		mem := store.NewMemoryStore()
		if o.sessions == nil {
			o.sessions = mem
		}
		if o.archive == nil {
			o.archive = mem
		}
	}
	if o.baselines == nil {
		if b, ok := o.archive.(analytics.Baselines); ok {
			o.baselines = b
		}
	}
	if o.sink == nil {
		o.sink = telemetry.Nop
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start generates the items of a new session and registers it.
func (o *Orchestrator) Start(ctx context.Context, userID, moduleID string, p profile.Profile, settings Settings) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidSettings)
	}
	if settings.Difficulty != 0 && !settings.Difficulty.Valid() {
		return nil, fmt.Errorf("%w: difficulty %d", ErrInvalidSettings, settings.Difficulty)
	}
	if settings.QuestionCount < 0 || settings.TimeLimit < 0 {
		return nil, fmt.Errorf("%w: negative count or time limit", ErrInvalidSettings)
	}
	if settings.QuestionCount == 0 {
		settings.QuestionCount = o.cfg.DefaultQuestionCount
	}
	p = o.resolveProfile(ctx, userID, p)

	id := o.newID()
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := o.reg.reserve(id, e); err != nil {
		o.sink.Emit(o.event(telemetry.Error, &Session{ID: id, UserID: userID, ModuleID: moduleID}, "op", "start", "error", err.Error()))
		return nil, err
	}

	res, err := o.generator.Generate(ctx, itemgen.Request{
		ModuleID:       moduleID,
		Difficulty:     settings.Difficulty,
		Count:          settings.QuestionCount,
		FocusTags:      settings.FocusAreas,
		ExcludedTopics: settings.ExcludedTopics,
		TimeBudget:     settings.TimeLimit,
		Profile:        p,
	})
	if err != nil {
		o.reg.remove(id)
		return nil, fmt.Errorf("generate items: %w", err)
	}
	if res.Empty() {
		o.reg.remove(id)
		genErr := &GenerationEmptyError{ModuleID: moduleID, Diagnostic: res.Diagnostic}
		o.sink.Emit(o.event(telemetry.Error, &Session{ID: id, UserID: userID, ModuleID: moduleID}, "op", "start", "error", genErr.Error()))
		return nil, genErr
	}

	now := o.now()
	s := &Session{
		ID:              id,
		UserID:          userID,
		ModuleID:        moduleID,
		Profile:         p,
		Settings:        settings,
		Status:          StatusActive,
		StartLevel:      res.Level,
		Level:           res.Level,
		Items:           res.Items,
		GenerationNotes: res.Adaptations,
		Diagnostic:      res.Diagnostic,
		StartedAt:       now,
		LastActivity:    now,
	}
	s.Progress = progress(s)
	e.s = s
	o.persist(ctx, s)

	slog.Info("session started", "session_id", id, "user_id", userID, "module", moduleID, "items", len(s.Items), "level", s.Level)
	o.sink.Emit(o.event(telemetry.SessionStarted, s, "items", len(s.Items), "level", s.Level.String()))
	return s.clone(), nil
}

// ProcessResponse scores the current item, composes feedback, runs the
// adaptation rules and advances the session. Validation problems are
// reported inside the score.
func (o *Orchestrator) ProcessResponse(ctx context.Context, sessionID string, resp assessment.Response) (*Outcome, error) {
	e, err := o.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if e.finalized || e.s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionClosed)
	}
	s := e.s
	switch {
	case s.Status == StatusPaused:
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionPaused)
	case s.Status.Terminal():
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, s.Status, ErrSessionClosed)
	}

	item := s.CurrentItem()
	if item == nil {
		return nil, fmt.Errorf("session %s has no pending item: %w", sessionID, ErrSessionClosed)
	}
	if resp.ItemID == "" {
		resp.ItemID = item.ID
	} else if resp.ItemID != item.ID {
		return nil, fmt.Errorf("%w: got %s, current is %s", ErrItemMismatch, resp.ItemID, item.ID)
	}
	if resp.UserID == "" {
		resp.UserID = s.UserID
	}
	now := o.now()
	if resp.SubmittedAt.IsZero() {
		resp.SubmittedAt = now
	}

	score, err := o.scorer.Score(ctx, item, &resp)
	if err != nil {
		o.sink.Emit(o.event(telemetry.Error, s, "op", "score", "item_id", item.ID, "error", err.Error()))
		return nil, fmt.Errorf("score item %s: %w", item.ID, err)
	}
	fb := o.composer.Compose(item, &resp, score, s.Profile)
	if !s.Settings.ExpertGuidance {
		stripped := *fb
		stripped.Content.Methodological = feedback.Methodological{}
		fb = &stripped
	}

	out := &Outcome{Score: score}
	if s.Settings.RealTimeFeedback {
		out.Feedback = fb
	}

	if resp.Partial {
		s.LastActivity = now
		o.persist(ctx, s)
		current := *item
		out.NextItem = &current
		return out, nil
	}

	s.Responses = append(s.Responses, resp)
	s.Scores = append(s.Scores, score)
	s.Feedback = append(s.Feedback, fb)
	s.Elapsed += resp.Elapsed
	s.Index++
	s.LastActivity = now

	if s.Settings.Adaptive {
		rec := o.adapt(ctx, s)
		out.Adaptations = rec.Decision.Actions
		out.Triggered = rec.Decision.Triggered
	}
	s.Progress = progress(s)

	o.sink.Emit(o.event(telemetry.ResponseScored, s,
		"item_id", item.ID,
		telemetry.AttrPercentage, score.Percentage,
		"pending", score.HasPending,
		"valid", score.Validation.Valid,
	))

	switch {
	case s.Index >= len(s.Items):
		o.transition(s, StatusCompleted, "")
		out.SessionComplete = true
	case s.Settings.TimeLimit > 0 && s.Elapsed > time.Duration(s.Settings.TimeLimit)*time.Minute:
		o.transition(s, StatusAbandoned, ReasonTimeLimit)
		out.SessionComplete = true
	default:
		next := *s.CurrentItem()
		out.NextItem = &next
	}
	o.persist(ctx, s)
	return out, nil
}

// adapt evaluates the rules over the recent window and applies the
// decision. The next pre-generated item is replayed unless the level
// changes and regeneration is enabled.
func (o *Orchestrator) adapt(ctx context.Context, s *Session) AdaptationRecord {
	d := adapt.Evaluate(o.rules, s.window(o.cfg.AdaptWindow))
	rec := AdaptationRecord{AfterItem: s.Index - 1, Decision: d, Level: s.Level}
	if !d.Changed() {
		return rec
	}
	if s.Settings.ProgressiveComplexity {
		rec.Level = d.Next(s.Level)
	}
	if rec.Level != s.Level && o.cfg.RegenerateOnAdapt && s.Index < len(s.Items) {
		if item, ok := o.regenerate(ctx, s, rec.Level); ok {
			s.Items[s.Index] = item
			rec.Regenerated = true
		}
	}
	if rec.Level != s.Level {
		slog.Info("session level adapted", "session_id", s.ID, "from", s.Level, "to", rec.Level, "rules", d.Triggered)
	}
	s.Level = rec.Level
	s.Adaptations = append(s.Adaptations, rec)
	return rec
}

// regenerate produces a replacement for the next slot at level, avoiding
// templates the session already uses. Failures keep the pre-generated item.
func (o *Orchestrator) regenerate(ctx context.Context, s *Session, level assessment.Difficulty) (assessment.Item, bool) {
	used := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		used = append(used, it.TemplateID)
	}
	item, err := itemgen.Regenerate(ctx, o.generator, itemgen.Request{
		ModuleID:         s.ModuleID,
		Difficulty:       level,
		FocusTags:        s.Settings.FocusAreas,
		ExcludedTopics:   s.Settings.ExcludedTopics,
		ExcludeTemplates: used,
		TimeBudget:       s.Items[s.Index].TimeBudget,
		Profile:          s.Profile,
	})
	switch {
	case errors.Is(err, itemgen.ErrNoReplacement):
		slog.Info("no replacement item, replaying pre-generated item", "session_id", s.ID, "level", level, "error", err)
		return assessment.Item{}, false
	case err != nil:
		slog.Warn("item regeneration failed, replaying pre-generated item", "session_id", s.ID, "error", err)
		return assessment.Item{}, false
	}
	return item, true
}

// Finalize computes the results of a completed or abandoned session and
// moves it to the archive. A second call fails with ErrAlreadyFinalized.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID string) (*analytics.Results, error) {
	e, err := o.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if e.finalized {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyFinalized)
	}
	if e.s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if !e.s.Status.Terminal() {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, e.s.Status, ErrSessionNotComplete)
	}
	return o.finalizeLocked(ctx, e)
}

func (o *Orchestrator) finalizeLocked(ctx context.Context, e *entry) (*analytics.Results, error) {
	s := e.s
	res := o.results(ctx, s)
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	snapshot, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	err = o.archive.Archive(ctx, store.ArchiveRecord{
		SessionID:    s.ID,
		UserID:       s.UserID,
		ModuleID:     s.ModuleID,
		Difficulty:   s.StartLevel.String(),
		AverageScore: res.Summary.AverageScore,
		Completed:    s.Status == StatusCompleted,
		Results:      data,
		Session:      snapshot,
		FinalizedAt:  res.GeneratedAt,
	})
	if errors.Is(err, store.ErrAlreadyArchived) {
		e.finalized = true
		o.reg.remove(s.ID)
		return nil, fmt.Errorf("session %s: %w", s.ID, ErrAlreadyFinalized)
	}
	if err != nil {
		o.sink.Emit(o.event(telemetry.Error, s, "op", "archive", "error", err.Error()))
		return nil, fmt.Errorf("archive session %s: %w", s.ID, err)
	}

	e.finalized = true
	o.reg.remove(s.ID)
	if err := o.sessions.Delete(ctx, s.ID); err != nil {
		slog.Warn("failed to delete finalized session", "session_id", s.ID, "error", err)
	}

	slog.Info("session finalized", "session_id", s.ID, "status", s.Status, "average", res.Summary.AverageScore)
	o.sink.Emit(o.event(telemetry.SessionFinalized, s,
		"average", res.Summary.AverageScore,
		"performance", string(res.Summary.OverallPerformance),
		"certified", res.Certification.Eligible,
	))
	return &res, nil
}

// Abandon ends a session. Abandoning a terminal or finalized session is a
// no-op.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) error {
	e, err := o.acquire(ctx, sessionID)
	if errors.Is(err, ErrAlreadyFinalized) {
		return nil
	}
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if e.finalized || e.s == nil || e.s.Status.Terminal() {
		return nil
	}
	o.transition(e.s, StatusAbandoned, ReasonUser)
	o.persist(ctx, e.s)
	return nil
}

// Pause suspends an active session. Pausing a paused session is a no-op.
func (o *Orchestrator) Pause(ctx context.Context, sessionID string) error {
	return o.update(ctx, sessionID, func(s *Session) error {
		switch s.Status {
		case StatusPaused:
			return nil
		case StatusActive:
			if s.Remaining() == 0 {
				return fmt.Errorf("session %s has no remaining items: %w", s.ID, ErrSessionClosed)
			}
			o.transition(s, StatusPaused, "")
			return nil
		}
		return fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionClosed)
	})
}

// Resume reactivates a paused session. Resuming an active session is a
// no-op.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	return o.update(ctx, sessionID, func(s *Session) error {
		switch s.Status {
		case StatusActive:
			return nil
		case StatusPaused:
			o.transition(s, StatusActive, "")
			return nil
		}
		return fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionClosed)
	})
}

func (o *Orchestrator) update(ctx context.Context, sessionID string, fn func(*Session) error) error {
	e, err := o.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if e.finalized || e.s == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionClosed)
	}
	if err := fn(e.s); err != nil {
		return err
	}
	e.s.LastActivity = o.now()
	o.persist(ctx, e.s)
	return nil
}

// Get returns a copy of a registered session.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*Session, error) {
	e, err := o.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if e.finalized {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyFinalized)
	}
	if e.s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return e.s.clone(), nil
}

// Results returns the archived results of a finalized session.
func (o *Orchestrator) Results(ctx context.Context, sessionID string) (*analytics.Results, error) {
	rec, err := o.archive.LoadArchive(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	var res analytics.Results
	if err := json.Unmarshal(rec.Results, &res); err != nil {
		return nil, fmt.Errorf("decode results of %s: %w", sessionID, err)
	}
	return &res, nil
}

// Active lists the registered sessions, ordered by id.
func (o *Orchestrator) Active() []Summary {
	var out []Summary
	for _, e := range o.reg.snapshot() {
		e.mu.Lock()
		if e.s != nil && !e.finalized && !e.evicted {
			out = append(out, e.s.summary())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// acquire looks a session up and returns its entry locked. An entry the
// sweeper evicted meanwhile is skipped in favour of a fresh lookup.
func (o *Orchestrator) acquire(ctx context.Context, id string) (*entry, error) {
	for {
		e, err := o.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.evicted {
			return e, nil
		}
		e.mu.Unlock()
	}
}

// lookup finds a registered session, restoring it from the session store
// when it is not in memory.
func (o *Orchestrator) lookup(ctx context.Context, id string) (*entry, error) {
	if e, ok := o.reg.get(id); ok {
		return e, nil
	}
	rec, err := o.sessions.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if _, archErr := o.archive.LoadArchive(ctx, id); archErr == nil {
			return nil, fmt.Errorf("session %s: %w", id, ErrAlreadyFinalized)
		}
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(rec.Data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	slog.Info("session restored from store", "session_id", id, "status", s.Status)
	return o.reg.adopt(id, &entry{s: &s}), nil
}

// transition moves s to a new status. Invalid transitions are ignored and
// logged; callers check the current status first.
func (o *Orchestrator) transition(s *Session, to Status, reason string) {
	if !canTransition(s.Status, to) {
		slog.Error("invalid session transition", "session_id", s.ID, "from", s.Status, "to", to)
		return
	}
	s.Status = to
	if !to.Terminal() {
		return
	}
	now := o.now()
	s.EndedAt = &now
	s.EndReason = reason
	switch to {
	case StatusCompleted:
		o.sink.Emit(o.event(telemetry.SessionCompleted, s, "items", len(s.Items)))
	case StatusAbandoned:
		slog.Info("session abandoned", "session_id", s.ID, "reason", reason)
		o.sink.Emit(o.event(telemetry.SessionAbandoned, s, "reason", reason, "answered", s.Index))
	}
}

// persist saves s to the session store. Failures are logged and reported;
// the in-memory copy stays authoritative.
func (o *Orchestrator) persist(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err == nil {
		err = o.sessions.Save(ctx, store.SessionRecord{
			ID:        s.ID,
			UserID:    s.UserID,
			ModuleID:  s.ModuleID,
			Status:    string(s.Status),
			Data:      data,
			UpdatedAt: s.LastActivity,
		})
	}
	if err != nil {
		slog.Warn("failed to persist session", "session_id", s.ID, "error", err)
		o.sink.Emit(o.event(telemetry.Error, s, "op", "persist", "error", err.Error()))
	}
	return err
}

func (o *Orchestrator) resolveProfile(ctx context.Context, userID string, p profile.Profile) profile.Profile {
	if p.UserID == "" {
		p.UserID = userID
	}
	if o.profiles == nil || !bare(p) {
		return p
	}
	resolved, err := o.profiles.ResolveProfile(ctx, userID)
	if err != nil {
		slog.Warn("profile unavailable, using defaults", "user_id", userID, "error", err)
		return p
	}
	resolved.UserID = userID
	return resolved
}

// bare reports whether a profile carries nothing but an id.
func bare(p profile.Profile) bool {
	return p.Role == "" && p.EBIOSYears == 0 && len(p.Specializations) == 0 &&
		len(p.Certifications) == 0 && p.Sector == "" && p.PreferredComplexity == 0
}

// event builds a telemetry event from key/value attribute pairs.
func (o *Orchestrator) event(t telemetry.Type, s *Session, kv ...any) telemetry.Event {
	e := telemetry.NewEvent(t, s.ID)
	e.Time = o.now()
	e.UserID = s.UserID
	e.ModuleID = s.ModuleID
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			e = e.With(k, kv[i+1])
		}
	}
	return e
}
