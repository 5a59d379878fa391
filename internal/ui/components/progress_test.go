package components

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"
)

func TestScoreBar_Fill(t *testing.T) {
	tests := []struct {
		percent    int
		wantFilled int
	}{
		{0, 0},
		{50, 10},
		{100, 20},
		{140, 20},
		{-5, 0},
	}
	for _, tt := range tests {
		view := NewScoreBar("", tt.percent, false, 20).View()
		if got := strings.Count(view, "█"); got != tt.wantFilled {
			t.Errorf("percent %d: filled = %d, want %d", tt.percent, got, tt.wantFilled)
		}
		if got := strings.Count(view, "█") + strings.Count(view, "░"); got != 20 {
			t.Errorf("percent %d: bar width = %d, want 20", tt.percent, got)
		}
	}
}

func TestScoreBar_LabelAndPercent(t *testing.T) {
	view := NewScoreBar("Workshop 1", 75, true, 40).View()
	if !strings.Contains(view, "Workshop 1") || !strings.Contains(view, "75%") {
		t.Fatalf("unexpected view: %q", view)
	}
	if w := lipgloss.Width(view); w != 40 {
		t.Errorf("width = %d, want 40", w)
	}
}
