package selfcheck

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abhisek/riskdrill/internal/ui/components"
	"github.com/abhisek/riskdrill/internal/ui/theme"
)

// RenderOptions control report output.
type RenderOptions struct {
	// Verbose lists passing checks with their durations.
	Verbose bool

	// Quiet prints failures only, and nothing when everything passed.
	Quiet bool
}

// Render writes a human-readable report.
func Render(w io.Writer, r *Report, opts RenderOptions) error {
	var b strings.Builder

	failures := 0
	for _, res := range r.Results {
		if !res.Passed && !res.Skipped {
			failures++
		}
	}
	if opts.Quiet && failures == 0 {
		return nil
	}

	if !opts.Quiet {
		b.WriteString(theme.Title.Render("riskdrill self-check"))
		b.WriteString(theme.Subtitle.Render("  env: " + r.Env))
		b.WriteString("\n\n")
	}

	for _, res := range r.Results {
		switch {
		case res.Skipped:
			if opts.Verbose && !opts.Quiet {
				fmt.Fprintf(&b, "  %s %s %s\n", theme.Subtitle.Render("SKIP"), res.Name, theme.Hint.Render(res.Error))
			}
		case res.Passed:
			if opts.Verbose && !opts.Quiet {
				fmt.Fprintf(&b, "  %s %s %s\n", theme.Pass.Render("PASS"), res.Name,
					theme.Hint.Render(res.Duration.Round(time.Millisecond).String()))
			}
		default:
			fmt.Fprintf(&b, "  %s %s %s\n    %s\n", statusLabel(res.Severity), res.Name,
				theme.Subtitle.Render("("+string(res.Severity)+")"), theme.Body.Render(res.Error))
		}
	}

	if !opts.Quiet {
		b.WriteString("\n")
		b.WriteString(components.NewScoreBar("checks", r.Percent(), true, 48).View())
		b.WriteString("\n")
		summary := fmt.Sprintf("%d passed, %d critical, %d warnings, %d skipped in %s",
			r.Passed(), r.CriticalFailures(), len(r.Failed(SeverityWarning)),
			len(r.Results)-r.Ran(), r.Duration.Round(time.Millisecond))
		b.WriteString(theme.Card.Render(summary))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusLabel(sev Severity) string {
	switch sev {
	case SeverityCritical:
		return theme.Fail.Render("FAIL")
	case SeverityWarning:
		return theme.Warn.Render("WARN")
	default:
		return theme.Subtitle.Render("INFO")
	}
}
