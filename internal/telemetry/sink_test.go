package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	s := Multi(a, nil, b)
	s.Emit(NewEvent(SessionStarted, "s1"))
	if a.len() != 1 || b.len() != 1 {
		t.Fatalf("got %d and %d events, want 1 each", a.len(), b.len())
	}
}

func TestAsyncSink_DeliversOnClose(t *testing.T) {
	rec := &recordingSink{}
	a := NewAsync(rec, 16)
	for i := 0; i < 10; i++ {
		a.Emit(NewEvent(ResponseScored, "s1"))
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.len() != 10 {
		t.Errorf("delivered = %d, want 10", rec.len())
	}

	a.Emit(NewEvent(ResponseScored, "s1"))
	if a.Dropped() != 1 {
		t.Errorf("emit after close should drop, dropped = %d", a.Dropped())
	}
}

func TestAsyncSink_DropsWhenFullWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	blocked := SinkFunc(func(Event) { <-release })
	a := NewAsync(blocked, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Emit(NewEvent(ResponseScored, "s1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	if a.Dropped() == 0 {
		t.Error("expected dropped events")
	}
	close(release)
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAsyncSink_SurvivesPanickingSink(t *testing.T) {
	rec := &recordingSink{}
	calls := 0
	s := SinkFunc(func(e Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		rec.Emit(e)
	})
	a := NewAsync(s, 4)
	a.Emit(NewEvent(Error, ""))
	a.Emit(NewEvent(Error, ""))
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.len() != 1 {
		t.Errorf("delivered = %d, want 1", rec.len())
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordEvent(context.Context, Event) error {
	f.calls++
	return errors.New("disk full")
}

func TestStoreSink_SwallowsErrors(t *testing.T) {
	rec := &failingRecorder{}
	StoreSink{Recorder: rec}.Emit(NewEvent(SessionFinalized, "s1"))
	if rec.calls != 1 {
		t.Errorf("calls = %d, want 1", rec.calls)
	}
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	s := PrometheusSink{M: m}

	s.Emit(NewEvent(SessionStarted, "s1"))
	s.Emit(NewEvent(SessionStarted, "s2"))
	s.Emit(NewEvent(SessionCompleted, "s1"))
	s.Emit(NewEvent(ResponseScored, "s1").With(AttrPercentage, 80))
	s.Emit(NewEvent(LLMRequest, "").With(AttrLatencyMS, int64(120)).With(AttrPurpose, "criterion_evaluation").With(AttrSuccess, true))

	if got := testutil.ToFloat64(m.active); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(SessionStarted))); got != 2 {
		t.Errorf("session_started = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.scores); got != 1 {
		t.Errorf("score histogram series = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(m.llmLatency); got != 1 {
		t.Errorf("llm latency series = %d, want 1", got)
	}
}

func TestMustNewMetrics_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := MustNewMetrics(reg)
	b := MustNewMetrics(reg)
	if a.events != b.events || a.active != b.active {
		t.Error("second registration should reuse existing collectors")
	}
}

func TestEventAttributes(t *testing.T) {
	e := NewEvent(ResponseScored, "s1").With("percentage", 72).With("item_id", "i1")
	if v, ok := e.Float("percentage"); !ok || v != 72 {
		t.Errorf("Float = %v, %v", v, ok)
	}
	if e.String("item_id") != "i1" {
		t.Errorf("String = %q", e.String("item_id"))
	}
	if _, ok := e.Float("missing"); ok {
		t.Error("missing attribute should not be found")
	}
	base := NewEvent(Error, "")
	_ = base.With("k", "v")
	if base.Attrs != nil {
		t.Error("With must not mutate the receiver")
	}
}
