package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweep abandons sessions idle longer than the idle timeout and evicts
// every idle session from memory. Evicted sessions stay in the session
// store, so a later call restores them and they can still be finalized.
// Each session is handled under its own lock, so a sweep never interleaves
// with an in-flight response. It returns the number of sessions evicted.
func (o *Orchestrator) Sweep(ctx context.Context) int {
	now := o.now()
	evicted := 0
	for _, e := range o.reg.snapshot() {
		if o.sweepEntry(ctx, e, now) {
			evicted++
		}
	}
	return evicted
}

func (o *Orchestrator) sweepEntry(ctx context.Context, e *entry, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized || e.evicted || e.s == nil {
		return false
	}
	s := e.s
	if now.Sub(s.LastActivity) <= o.cfg.IdleTimeout {
		return false
	}
	if !s.Status.Terminal() {
		o.transition(s, StatusAbandoned, ReasonIdle)
	}
	if err := o.persist(ctx, s); err != nil {
		// Sessions only leave memory once the store has them.
		return false
	}
	e.evicted = true
	o.reg.remove(s.ID)
	return true
}

// RunSweeper sweeps on every SweepInterval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Sweep(ctx); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "active", o.reg.len())
			}
		}
	}
}
