package scoring

import (
	"fmt"
	"time"
)

// Config controls heuristic evaluation.
type Config struct {
	// EvaluatorTimeout bounds each heuristic evaluation attempt.
	EvaluatorTimeout time.Duration

	// EvaluatorRetries is the number of additional attempts after a failure.
	EvaluatorRetries int

	// InitialBackoff is the wait before the first retry; it doubles on
	// each further retry.
	InitialBackoff time.Duration

	// Parallelism caps concurrent heuristic evaluations per score.
	Parallelism int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EvaluatorTimeout: 10 * time.Second,
		EvaluatorRetries: 2,
		InitialBackoff:   200 * time.Millisecond,
		Parallelism:      4,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.EvaluatorTimeout <= 0 {
		return fmt.Errorf("evaluator timeout must be positive, got %s", c.EvaluatorTimeout)
	}
	if c.EvaluatorRetries < 0 {
		return fmt.Errorf("evaluator retries must be non-negative, got %d", c.EvaluatorRetries)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	return nil
}
