package session

import (
	"fmt"
	"time"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Config controls the Orchestrator.
type Config struct {
	// MaxActive caps the number of sessions held in the registry.
	MaxActive int

	// IdleTimeout is how long a session may go without activity before
	// the sweeper abandons it.
	IdleTimeout time.Duration

	// SweepInterval is the period of the idle sweeper.
	SweepInterval time.Duration

	// RegenerateOnAdapt regenerates the next item when an adaptation rule
	// proposes a difficulty change. Otherwise the pre-generated item is
	// replayed.
	RegenerateOnAdapt bool

	// AdaptWindow is how many recent responses the adaptation rules see.
	AdaptWindow int

	// DefaultQuestionCount applies when a session asks for zero items.
	DefaultQuestionCount int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxActive:            1000,
		IdleTimeout:          30 * time.Minute,
		SweepInterval:        time.Minute,
		AdaptWindow:          5,
		DefaultQuestionCount: 5,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.MaxActive <= 0 {
		return fmt.Errorf("max active must be positive, got %d", c.MaxActive)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.AdaptWindow <= 0 {
		return fmt.Errorf("adapt window must be positive, got %d", c.AdaptWindow)
	}
	return nil
}

// Settings configure one session.
type Settings struct {
	// Difficulty is the starting level. Zero derives it from the profile.
	Difficulty assessment.Difficulty `json:"difficulty,omitempty"`

	QuestionCount int  `json:"question_count"`
	Adaptive      bool `json:"adaptive"`

	// TimeLimit is the total session budget in minutes. Zero means none.
	TimeLimit int `json:"time_limit,omitempty"`

	// RealTimeFeedback returns feedback with every response. When false,
	// feedback is kept for the results only.
	RealTimeFeedback bool `json:"real_time_feedback"`

	// ExpertGuidance includes the methodological section in feedback.
	ExpertGuidance bool `json:"expert_guidance"`

	// ProgressiveComplexity lets adaptation rules move the session level.
	ProgressiveComplexity bool `json:"progressive_complexity"`

	FocusAreas     []string `json:"focus_areas,omitempty"`
	ExcludedTopics []string `json:"excluded_topics,omitempty"`
}

// DefaultSettings returns the settings used when a caller passes none.
func DefaultSettings() Settings {
	return Settings{
		QuestionCount:    5,
		Adaptive:         true,
		RealTimeFeedback: true,
		ExpertGuidance:   true,
	}
}
