package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives events. Emit must not block and never fails from the
// caller's point of view.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

type multi []Sink

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// AsyncSink decouples producers from a slow sink through a bounded buffer.
// Events are dropped when the buffer is full.
type AsyncSink struct {
	inner Sink
	ch    chan Event

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsync starts a drain goroutine delivering to inner.
func NewAsync(inner Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncSink{
		inner: inner,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncSink) drain() {
	defer close(a.done)
	for e := range a.ch {
		a.deliver(e)
	}
}

func (a *AsyncSink) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telemetry sink panicked", "type", e.Type, "panic", r)
		}
	}()
	a.inner.Emit(e)
}

// Emit queues e, dropping it when the buffer is full or the sink is closed.
func (a *AsyncSink) Emit(e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- e:
	default:
		if a.dropped.Add(1)%100 == 1 {
			slog.Warn("telemetry buffer full, dropping events", "dropped", a.dropped.Load())
		}
	}
}

// Dropped returns the number of events discarded so far.
func (a *AsyncSink) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (a *AsyncSink) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SlogSink writes events to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (s SlogSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := s.Level
	if e.Type == Error {
		level = slog.LevelError
	}
	args := []any{"type", e.Type, "event_id", e.ID}
	if e.SessionID != "" {
		args = append(args, "session_id", e.SessionID)
	}
	if e.UserID != "" {
		args = append(args, "user_id", e.UserID)
	}
	for k, v := range e.Attrs {
		args = append(args, k, v)
	}
	logger.Log(context.Background(), level, "telemetry event", args...)
}

// Recorder persists events.
type Recorder interface {
	RecordEvent(ctx context.Context, e Event) error
}

// StoreSink writes events through a Recorder. Failures are logged and
// swallowed. Wrap it in an AsyncSink to keep writes off the request path.
type StoreSink struct {
	Recorder Recorder
	Timeout  time.Duration
}

func (s StoreSink) Emit(e Event) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Recorder.RecordEvent(ctx, e); err != nil {
		slog.Warn("failed to record telemetry event", "type", e.Type, "event_id", e.ID, "error", err)
	}
}
