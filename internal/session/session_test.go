package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/store"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

func testItem(id string, level assessment.Difficulty) assessment.Item {
	return assessment.Item{
		ID:         id,
		ModuleID:   "workshop-1",
		Type:       assessment.TypeScenarioAnalysis,
		Difficulty: level,
		Title:      "Scope the hospital information system",
		Requirements: []assessment.Requirement{
			{ID: "assets", Title: "Business assets", Weight: 1},
		},
		Rubric: assessment.Rubric{Criteria: []assessment.Criterion{{
			ID:            "c-assets",
			Name:          "Business assets",
			RequirementID: "assets",
			Points:        10,
			Method:        assessment.MethodAutomatic,
			Check:         &assessment.Check{Kind: assessment.CheckMinItems, Min: 2},
		}}},
		Hints: []assessment.Hint{
			{Level: 1, Text: "Think about patient data.", Deduction: 2},
			{Level: 2, Text: "Billing is an asset too.", Deduction: 5},
		},
		Rules:      []assessment.Rule{{Field: "assets", Rule: "required", Severity: assessment.SeverityCritical}},
		TimeBudget: 10,
		TemplateID: "tpl-" + id,
	}
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []itemgen.Request
	empty    bool
	next     int
	// review adds a deferred-review criterion to every item.
	review bool
}

func (g *fakeGenerator) Generate(_ context.Context, req itemgen.Request) (*itemgen.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	level := req.Difficulty
	if level == 0 {
		level = assessment.Advanced
	}
	res := &itemgen.Result{Level: level}
	if g.empty {
		res.Diagnostic = &itemgen.Diagnostic{Code: itemgen.CodeGenerationEmpty, Message: "no templates"}
		return res, nil
	}
	for i := 0; i < req.Count; i++ {
		g.next++
		item := testItem(fmt.Sprintf("item-%d", g.next), level)
		if g.review {
			item.Rubric.Criteria = append(item.Rubric.Criteria, assessment.Criterion{
				ID:            "c-owners",
				Name:          "Risk owners",
				RequirementID: "assets",
				Points:        2,
				Method:        assessment.MethodDeferredReview,
			})
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu    sync.Mutex
	types []telemetry.Type
}

func (r *recordingSink) Emit(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *recordingSink) count(t telemetry.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.types {
		if got == t {
			n++
		}
	}
	return n
}

type fixture struct {
	o     *Orchestrator
	gen   *fakeGenerator
	clock *fakeClock
	sink  *recordingSink
	store *store.MemoryStore
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		gen:   &fakeGenerator{},
		clock: &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
		sink:  &recordingSink{},
		store: store.NewMemoryStore(),
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ids := 0
	o, err := New(Deps{
		Generator: f.gen,
		Scorer:    scoring.NewEngine(nil, scoring.DefaultConfig()),
		Sessions:  f.store,
		Archive:   f.store,
		Telemetry: f.sink,
	}, cfg, WithClock(f.clock.Now), WithIDFunc(func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.o = o
	return f
}

func settings(count int) Settings {
	s := DefaultSettings()
	s.QuestionCount = count
	return s
}

func goodResponse() assessment.Response {
	return assessment.Response{
		Answers: map[string]any{"assets": []any{"patient records", "billing"}},
		Elapsed: 6 * time.Minute,
	}
}

func poorResponse() assessment.Response {
	return assessment.Response{
		Answers: map[string]any{},
		Elapsed: 6 * time.Minute,
	}
}

func (f *fixture) start(t *testing.T, s Settings) *Session {
	t.Helper()
	sess, err := f.o.Start(context.Background(), "u1", "workshop-1", profile.Profile{EBIOSYears: 3}, s)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func TestTwoQuestionSessionToFinalize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t, settings(2))

	if len(sess.Items) != 2 || sess.Status != StatusActive {
		t.Fatalf("started session = %d items, status %s", len(sess.Items), sess.Status)
	}

	out1, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("response 1: %v", err)
	}
	if out1.SessionComplete {
		t.Error("session should not be complete after one of two responses")
	}
	if out1.NextItem == nil || out1.NextItem.ID != sess.Items[1].ID {
		t.Errorf("next item = %+v, want %s", out1.NextItem, sess.Items[1].ID)
	}
	if out1.Score.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", out1.Score.Percentage)
	}
	if out1.Feedback == nil {
		t.Error("expected real-time feedback")
	}

	out2, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("response 2: %v", err)
	}
	if !out2.SessionComplete {
		t.Fatal("response 2 should complete the session")
	}
	if out2.NextItem != nil {
		t.Errorf("no next item expected, got %s", out2.NextItem.ID)
	}

	res, err := f.o.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.Summary.CompletedQuestions != 2 {
		t.Errorf("completed questions = %d, want 2", res.Summary.CompletedQuestions)
	}
	if res.SessionID != sess.ID || res.UserID != "u1" {
		t.Errorf("results ids = %s/%s", res.SessionID, res.UserID)
	}
	if !res.Certification.Eligible {
		t.Errorf("expected certification, got %+v", res.Certification)
	}

	if _, err := f.o.Finalize(ctx, sess.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("second finalize: got %v, want ErrAlreadyFinalized", err)
	}
	if f.sink.count(telemetry.SessionFinalized) != 1 {
		t.Errorf("session_finalized events = %d, want 1", f.sink.count(telemetry.SessionFinalized))
	}
	if f.store.Len() != 0 {
		t.Errorf("finalized session should leave the session store, %d left", f.store.Len())
	}

	archived, err := f.o.Results(ctx, sess.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if archived.Summary.AverageScore != res.Summary.AverageScore {
		t.Errorf("archived average = %v, want %v", archived.Summary.AverageScore, res.Summary.AverageScore)
	}
}

func TestProcessResponse_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.o.ProcessResponse(ctx, "missing", goodResponse()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}

	sess := f.start(t, settings(3))
	wrong := goodResponse()
	wrong.ItemID = sess.Items[1].ID
	if _, err := f.o.ProcessResponse(ctx, sess.ID, wrong); !errors.Is(err, ErrItemMismatch) {
		t.Errorf("wrong item: got %v, want ErrItemMismatch", err)
	}

	if err := f.o.Pause(ctx, sess.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse()); !errors.Is(err, ErrSessionPaused) {
		t.Errorf("paused: got %v, want ErrSessionPaused", err)
	}
	if err := f.o.Resume(ctx, sess.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse()); err != nil {
		t.Fatalf("after resume: %v", err)
	}

	if _, err := f.o.Finalize(ctx, sess.ID); !errors.Is(err, ErrSessionNotComplete) {
		t.Errorf("finalize active: got %v, want ErrSessionNotComplete", err)
	}

	if err := f.o.Abandon(ctx, sess.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if err := f.o.Abandon(ctx, sess.ID); err != nil {
		t.Errorf("abandon twice should be a no-op, got %v", err)
	}
	if _, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("abandoned: got %v, want ErrSessionClosed", err)
	}
	if err := f.o.Resume(ctx, sess.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("resume abandoned: got %v, want ErrSessionClosed", err)
	}
	if f.sink.count(telemetry.SessionAbandoned) != 1 {
		t.Errorf("session_abandoned events = %d, want 1", f.sink.count(telemetry.SessionAbandoned))
	}

	res, err := f.o.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("finalize abandoned: %v", err)
	}
	if res.Certification.Eligible {
		t.Error("abandoned session must not certify")
	}
	if res.Summary.CompletedQuestions != 1 || res.Summary.TotalQuestions != 3 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if err := f.o.Abandon(ctx, sess.ID); err != nil {
		t.Errorf("abandon after finalize should be a no-op, got %v", err)
	}
}

func TestStatusAndIndexOnlyMoveForward(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t, settings(3))

	prev := 0
	for i := 0; i < 3; i++ {
		if _, err := f.o.ProcessResponse(ctx, sess.ID, poorResponse()); err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
		got, err := f.o.Get(ctx, sess.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Index < prev {
			t.Fatalf("index went backwards: %d < %d", got.Index, prev)
		}
		prev = got.Index
	}

	got, _ := f.o.Get(ctx, sess.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if err := f.o.Abandon(ctx, sess.ID); err != nil {
		t.Fatalf("abandon completed: %v", err)
	}
	got, _ = f.o.Get(ctx, sess.ID)
	if got.Status != StatusCompleted {
		t.Errorf("abandoning a completed session changed it to %s", got.Status)
	}
	if err := f.o.Pause(ctx, sess.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("pause completed: got %v, want ErrSessionClosed", err)
	}
}

func TestValidationProblemsStayInsideScore(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t, settings(2))

	out, err := f.o.ProcessResponse(context.Background(), sess.ID, poorResponse())
	if err != nil {
		t.Fatalf("validation failures must not be errors: %v", err)
	}
	if out.Score.Validation.Valid {
		t.Error("expected invalid validation")
	}
	if len(out.Score.Validation.Errors) == 0 || out.Score.Validation.Errors[0].Field != "assets" {
		t.Errorf("errors = %+v", out.Score.Validation.Errors)
	}
}

func TestHintDeductionThroughSession(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t, settings(1))

	resp := goodResponse()
	resp.HintsUsed = []int{1, 2}
	out, err := f.o.ProcessResponse(context.Background(), sess.ID, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Score.HintDeduction != 7 || out.Score.Earned != 3 {
		t.Errorf("deduction = %v, earned = %v, want 7 and 3", out.Score.HintDeduction, out.Score.Earned)
	}
}

func TestStart_Errors(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxActive = 1 })
	ctx := context.Background()

	if _, err := f.o.Start(ctx, "", "workshop-1", profile.Profile{}, settings(1)); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("missing user: got %v, want ErrInvalidSettings", err)
	}

	f.start(t, settings(1))
	if _, err := f.o.Start(ctx, "u2", "workshop-1", profile.Profile{}, settings(1)); !errors.Is(err, ErrSessionLimitExceeded) {
		t.Errorf("over limit: got %v, want ErrSessionLimitExceeded", err)
	}

	g := newFixture(t, nil)
	g.gen.empty = true
	_, err := g.o.Start(ctx, "u1", "workshop-9", profile.Profile{}, settings(2))
	var empty *GenerationEmptyError
	if !errors.As(err, &empty) {
		t.Fatalf("empty generation: got %v, want *GenerationEmptyError", err)
	}
	if empty.Diagnostic == nil || empty.Diagnostic.Code != itemgen.CodeGenerationEmpty {
		t.Errorf("diagnostic = %+v", empty.Diagnostic)
	}
	if len(g.o.Active()) != 0 {
		t.Error("a failed start must release its slot")
	}
	if g.sink.count(telemetry.Error) != 1 {
		t.Errorf("error events = %d, want 1", g.sink.count(telemetry.Error))
	}
}

func TestStart_PassesSettingsToGenerator(t *testing.T) {
	f := newFixture(t, nil)
	s := settings(0)
	s.Difficulty = assessment.Expert
	s.FocusAreas = []string{"healthcare"}
	s.TimeLimit = 45
	sess := f.start(t, s)

	req := f.gen.requests[0]
	if req.Count != DefaultConfig().DefaultQuestionCount {
		t.Errorf("count = %d, want the default", req.Count)
	}
	if req.Difficulty != assessment.Expert || req.TimeBudget != 45 || req.FocusTags[0] != "healthcare" {
		t.Errorf("request = %+v", req)
	}
	if req.Profile.UserID != "u1" {
		t.Errorf("profile user = %q, want u1", req.Profile.UserID)
	}
	if sess.StartLevel != assessment.Expert {
		t.Errorf("start level = %s", sess.StartLevel)
	}
}

func TestAdaptation_ReplaysByDefault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := settings(4)
	s.ProgressiveComplexity = true
	sess := f.start(t, s)

	var out *Outcome
	for i := 0; i < 2; i++ {
		var err error
		if out, err = f.o.ProcessResponse(ctx, sess.ID, poorResponse()); err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
	}
	if len(out.Triggered) == 0 || out.Triggered[0] != "low_score_pattern" {
		t.Fatalf("triggered = %v", out.Triggered)
	}
	if f.gen.calls() != 1 {
		t.Errorf("generator calls = %d, want 1 (replay)", f.gen.calls())
	}
	if out.NextItem.ID != sess.Items[2].ID {
		t.Errorf("next item = %s, want pre-generated %s", out.NextItem.ID, sess.Items[2].ID)
	}

	got, _ := f.o.Get(ctx, sess.ID)
	if got.Level != assessment.Intermediate {
		t.Errorf("level = %s, want intermediate", got.Level)
	}
	if len(got.Adaptations) != 1 || got.Adaptations[0].Regenerated {
		t.Errorf("adaptations = %+v", got.Adaptations)
	}
}

func TestAdaptation_RegeneratesWhenEnabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RegenerateOnAdapt = true })
	ctx := context.Background()
	s := settings(4)
	s.ProgressiveComplexity = true
	sess := f.start(t, s)

	var out *Outcome
	for i := 0; i < 2; i++ {
		var err error
		if out, err = f.o.ProcessResponse(ctx, sess.ID, poorResponse()); err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
	}
	if f.gen.calls() != 2 {
		t.Fatalf("generator calls = %d, want 2", f.gen.calls())
	}
	req := f.gen.requests[1]
	if req.Count != 1 || req.Difficulty != assessment.Intermediate || len(req.ExcludeTemplates) != 4 {
		t.Errorf("regeneration request = %+v", req)
	}
	if out.NextItem.ID == sess.Items[2].ID || out.NextItem.Difficulty != assessment.Intermediate {
		t.Errorf("next item = %s (%s), want a regenerated intermediate item", out.NextItem.ID, out.NextItem.Difficulty)
	}
}

func TestAdaptation_DisabledWhenNotAdaptive(t *testing.T) {
	f := newFixture(t, nil)
	s := settings(3)
	s.Adaptive = false
	sess := f.start(t, s)
	for i := 0; i < 2; i++ {
		out, err := f.o.ProcessResponse(context.Background(), sess.ID, poorResponse())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(out.Triggered) != 0 {
			t.Errorf("non-adaptive session triggered %v", out.Triggered)
		}
	}
}

func TestFeedbackSettings(t *testing.T) {
	f := newFixture(t, nil)
	s := settings(2)
	s.RealTimeFeedback = false
	sess := f.start(t, s)
	out, err := f.o.ProcessResponse(context.Background(), sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Feedback != nil {
		t.Error("feedback should be withheld without real-time feedback")
	}
	got, _ := f.o.Get(context.Background(), sess.ID)
	if len(got.Feedback) != 1 {
		t.Errorf("stored feedback = %d, want 1", len(got.Feedback))
	}

	s = settings(2)
	s.ExpertGuidance = false
	sess = f.start(t, s)
	out, err = f.o.ProcessResponse(context.Background(), sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Feedback.Content.Methodological.Phase != "" {
		t.Error("methodological guidance should be omitted")
	}
}

func TestPartialResponseDoesNotAdvance(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t, settings(2))
	resp := goodResponse()
	resp.Partial = true
	out, err := f.o.ProcessResponse(context.Background(), sess.ID, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.NextItem == nil || out.NextItem.ID != sess.Items[0].ID {
		t.Errorf("partial response should keep the current item")
	}
	got, _ := f.o.Get(context.Background(), sess.ID)
	if got.Index != 0 || len(got.Scores) != 0 {
		t.Errorf("index = %d, scores = %d after a partial response", got.Index, len(got.Scores))
	}
}

func TestTimeLimitEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	s := settings(3)
	s.TimeLimit = 10
	sess := f.start(t, s)
	ctx := context.Background()

	if _, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.SessionComplete {
		t.Fatal("exceeding the time limit should end the session")
	}
	got, _ := f.o.Get(ctx, sess.ID)
	if got.Status != StatusAbandoned || got.EndReason != ReasonTimeLimit {
		t.Errorf("status = %s (%s)", got.Status, got.EndReason)
	}
}

func TestRubricErrorLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t, settings(2))

	e, _ := f.o.reg.get(sess.ID)
	e.mu.Lock()
	e.s.Items[0].Rubric.Criteria[0].Method = "peer_vote"
	e.mu.Unlock()

	_, err := f.o.ProcessResponse(context.Background(), sess.ID, goodResponse())
	var rubricErr *scoring.RubricConfigurationError
	if !errors.As(err, &rubricErr) {
		t.Fatalf("got %v, want *RubricConfigurationError", err)
	}
	got, _ := f.o.Get(context.Background(), sess.ID)
	if got.Index != 0 {
		t.Errorf("index = %d, want 0", got.Index)
	}
}

func TestSweep_AbandonsIdleSessions(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTimeout = 10 * time.Minute })
	ctx := context.Background()
	idle := f.start(t, settings(2))
	f.clock.Advance(8 * time.Minute)
	busy := f.start(t, settings(2))

	f.clock.Advance(5 * time.Minute)
	if n := f.o.Sweep(ctx); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}

	active := f.o.Active()
	if len(active) != 1 || active[0].ID != busy.ID {
		t.Errorf("active = %+v, want only %s", active, busy.ID)
	}
	if f.sink.count(telemetry.SessionAbandoned) != 1 {
		t.Errorf("session_abandoned events = %d, want 1", f.sink.count(telemetry.SessionAbandoned))
	}

	got, err := f.o.Get(ctx, idle.ID)
	if err != nil {
		t.Fatalf("idle session should be restored from the store: %v", err)
	}
	if got.Status != StatusAbandoned || got.EndReason != ReasonIdle {
		t.Errorf("status = %s (%s)", got.Status, got.EndReason)
	}
	res, err := f.o.Finalize(ctx, idle.ID)
	if err != nil {
		t.Fatalf("finalize after sweep: %v", err)
	}
	if res.Summary.CompletedQuestions != 0 {
		t.Errorf("completed = %d", res.Summary.CompletedQuestions)
	}
}

func TestSweep_CompletedSessionStaysFinalizable(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTimeout = 10 * time.Minute })
	ctx := context.Background()
	sess := f.start(t, settings(1))
	out, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.SessionComplete {
		t.Fatal("one-item session should complete")
	}

	f.clock.Advance(11 * time.Minute)
	if n := f.o.Sweep(ctx); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if f.sink.count(telemetry.SessionFinalized) != 0 {
		t.Fatal("the sweeper must not finalize sessions")
	}

	res, err := f.o.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("first finalize after sweep: %v", err)
	}
	if res.Summary.CompletedQuestions != 1 {
		t.Errorf("completed = %d, want 1", res.Summary.CompletedQuestions)
	}
	if _, err := f.o.Finalize(ctx, sess.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("second finalize: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestSweep_StaleEntryIsReacquired(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTimeout = time.Minute })
	ctx := context.Background()
	sess := f.start(t, settings(2))

	stale, _ := f.o.reg.get(sess.ID)
	f.clock.Advance(2 * time.Minute)
	f.o.Sweep(ctx)

	stale.mu.Lock()
	evicted := stale.evicted
	stale.mu.Unlock()
	if !evicted {
		t.Fatal("swept entry should be marked evicted")
	}
	e, err := f.o.acquire(ctx, sess.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer e.mu.Unlock()
	if e == stale {
		t.Fatal("acquire returned the evicted entry")
	}
	if e.s.Status != StatusAbandoned {
		t.Errorf("status = %s", e.s.Status)
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SweepInterval = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.o.RunSweeper(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRestoreFromStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t, settings(2))
	if _, err := f.o.ProcessResponse(ctx, sess.ID, goodResponse()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second orchestrator sharing the store picks the session up.
	o2, err := New(Deps{
		Generator: f.gen,
		Scorer:    scoring.NewEngine(nil, scoring.DefaultConfig()),
		Sessions:  f.store,
		Archive:   f.store,
	}, DefaultConfig(), WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := o2.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.Index != 1 || len(got.Scores) != 1 || got.StartLevel != assessment.Advanced {
		t.Errorf("restored session = index %d, %d scores, level %s", got.Index, len(got.Scores), got.StartLevel)
	}
	out, err := o2.ProcessResponse(ctx, sess.ID, goodResponse())
	if err != nil {
		t.Fatalf("respond after restore: %v", err)
	}
	if !out.SessionComplete {
		t.Error("restored session should complete")
	}
}

func TestConcurrentSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.start(t, settings(3)).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*3)
	for _, id := range ids {
		// Three concurrent submissions on the same session serialize onto
		// consecutive items.
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := f.o.ProcessResponse(ctx, id, goodResponse()); err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	for _, id := range ids {
		got, err := f.o.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != StatusCompleted || got.Index != 3 {
			t.Errorf("session %s = %s at %d", id, got.Status, got.Index)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusAbandoned, false},
		{StatusAbandoned, StatusActive, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
