package itemgen

import (
	"fmt"
	"time"
)

// Config controls the behavior of the CatalogGenerator.
type Config struct {
	// Validators run in order on every instantiated item; the first failure
	// drops the item.
	Validators []Validator

	// MaxCount caps the number of items per request.
	MaxCount int

	// FetchTimeout bounds the template source call.
	FetchTimeout time.Duration

	// FreshnessWindow is how recent an update must be to earn the freshness bonus.
	FreshnessWindow time.Duration

	// AllowAdjacent fills short results with templates one level away from
	// the requested difficulty. Exact matches always rank first.
	AllowAdjacent bool

	// MinItemBudget is the floor, in minutes, when a request's time budget
	// is split across items.
	MinItemBudget int
}

// DefaultConfig returns a Config with the standard validator chain.
func DefaultConfig() Config {
	return Config{
		Validators: []Validator{
			&StructuralValidator{},
			&WeightValidator{},
			&HintValidator{},
			&ReferenceValidator{},
		},
		MaxCount:        20,
		FetchTimeout:    3 * time.Second,
		FreshnessWindow: 30 * 24 * time.Hour,
		MinItemBudget:   5,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.MaxCount <= 0 {
		return fmt.Errorf("max count must be positive, got %d", c.MaxCount)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.MinItemBudget <= 0 {
		return fmt.Errorf("min item budget must be positive, got %d", c.MinItemBudget)
	}
	return nil
}
