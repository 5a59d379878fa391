// Package selfcheck runs environment-specific health checks over a wired
// service and reports the findings.
package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Severity grades a failing check.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ErrSkipped is returned by a check that does not apply to the current
// configuration. Skipped checks count as neither passed nor failed.
var ErrSkipped = errors.New("check skipped")

// Check is one named health check.
type Check struct {
	Name        string
	Description string
	Severity    Severity

	// Envs limits the check to these environments. Empty means all.
	Envs []string

	Run func(ctx context.Context) error
}

func (c Check) appliesTo(env string) bool {
	return len(c.Envs) == 0 || slices.Contains(c.Envs, env)
}

// Result is the outcome of one check.
type Result struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Severity    Severity      `json:"severity"`
	Passed      bool          `json:"passed"`
	Skipped     bool          `json:"skipped,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Report is the outcome of a run.
type Report struct {
	Env       string        `json:"env"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`
}

// Passed counts passing checks.
func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// Failed returns the failing results of the given severity.
func (r *Report) Failed(sev Severity) []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed && !res.Skipped && res.Severity == sev {
			out = append(out, res)
		}
	}
	return out
}

// CriticalFailures counts failing critical checks.
func (r *Report) CriticalFailures() int {
	return len(r.Failed(SeverityCritical))
}

// Ran counts checks that were not skipped.
func (r *Report) Ran() int {
	n := 0
	for _, res := range r.Results {
		if !res.Skipped {
			n++
		}
	}
	return n
}

// Percent is the share of executed checks that passed, 0-100.
func (r *Report) Percent() int {
	ran := r.Ran()
	if ran == 0 {
		return 100
	}
	return r.Passed() * 100 / ran
}

// Runner executes checks.
type Runner struct {
	checks      []Check
	timeout     time.Duration
	parallelism int
	now         func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithParallelism caps how many checks run at once.
func WithParallelism(n int) Option {
	return func(r *Runner) { r.parallelism = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner over the given checks.
func NewRunner(checks []Check, opts ...Option) *Runner {
	r := &Runner{
		checks:      checks,
		timeout:     30 * time.Second,
		parallelism: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism < 1 {
		r.parallelism = 1
	}
	return r
}

// Run executes every check that applies to env. Results keep the order
// of the checks regardless of completion order.
func (r *Runner) Run(ctx context.Context, env string) *Report {
	start := r.now()
	report := &Report{Env: env, StartedAt: start}

	var selected []Check
	for _, c := range r.checks {
		if c.appliesTo(env) {
			selected = append(selected, c)
		}
	}
	report.Results = make([]Result, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, c := range selected {
		g.Go(func() error {
			report.Results[i] = r.runOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = r.now().Sub(start)
	return report
}

func (r *Runner) runOne(ctx context.Context, c Check) (res Result) {
	res = Result{Name: c.Name, Description: c.Description, Severity: c.Severity}
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			res.Passed = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.Duration = r.now().Sub(start)
		if !res.Passed && !res.Skipped {
			slog.Debug("self-check failed", "check", c.Name, "severity", c.Severity, "error", res.Error)
		}
	}()

	if c.Run == nil {
		res.Error = "check has no run function"
		return res
	}

	cctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err := c.Run(cctx)
	switch {
	case err == nil:
		res.Passed = true
	case errors.Is(err, ErrSkipped):
		res.Skipped = true
		res.Error = err.Error()
	default:
		res.Error = err.Error()
	}
	return res
}

// ExitCode maps a report onto a process exit status: 1 when critical
// checks failed and failOnCritical is set, 0 otherwise.
func ExitCode(r *Report, failOnCritical bool) int {
	if failOnCritical && r.CriticalFailures() > 0 {
		return 1
	}
	return 0
}
