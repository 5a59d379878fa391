// Package components renders small reusable pieces of CLI output.
package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/riskdrill/internal/ui/theme"
)

// ScoreBar displays a horizontal bar for a 0-100 score.
type ScoreBar struct {
	Label       string
	Percent     int
	ShowPercent bool
	Width       int
}

// NewScoreBar creates a new score bar.
func NewScoreBar(label string, percent int, showPercent bool, width int) ScoreBar {
	return ScoreBar{
		Label:       label,
		Percent:     percent,
		ShowPercent: showPercent,
		Width:       width,
	}
}

// View renders the bar. Block characters keep it readable without color.
func (b ScoreBar) View() string {
	var result string

	if b.Label != "" {
		result += theme.Body.Render(b.Label) + "  "
	}

	labelWidth := lipgloss.Width(result)
	percentWidth := 0
	if b.ShowPercent {
		percentWidth = 6 // "  100%"
	}

	barWidth := max(b.Width-labelWidth-percentWidth, 4)
	filled := min(max(barWidth*b.Percent/100, 0), barWidth)
	empty := barWidth - filled

	result += theme.BarFilled.Render(strings.Repeat("█", filled))
	result += theme.BarEmpty.Render(strings.Repeat("░", empty))

	if b.ShowPercent {
		result += theme.ForPercentage(b.Percent).Render(fmt.Sprintf("  %d%%", b.Percent))
	}

	return result
}
