package session

import (
	"errors"
	"fmt"

	"github.com/abhisek/riskdrill/internal/itemgen"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrAlreadyFinalized     = errors.New("session already finalized")
	ErrSessionLimitExceeded = errors.New("active session limit exceeded")
	ErrSessionNotComplete   = errors.New("session not completed or abandoned")
	ErrSessionClosed        = errors.New("session is closed")
	ErrSessionPaused        = errors.New("session is paused")
	ErrItemMismatch         = errors.New("response does not match the current item")
	ErrNoSuchResponse       = errors.New("no scored response at that index")
)

// GenerationEmptyError is returned by Start when no item could be generated.
type GenerationEmptyError struct {
	ModuleID   string
	Diagnostic *itemgen.Diagnostic
}

func (e *GenerationEmptyError) Error() string {
	if e.Diagnostic == nil {
		return fmt.Sprintf("no items generated for module %s", e.ModuleID)
	}
	return fmt.Sprintf("no items generated for module %s: %s", e.ModuleID, e.Diagnostic)
}
