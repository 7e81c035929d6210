package conversation

import (
	"errors"
	"fmt"
)

// Error taxonomy of the orchestrator. Callers match with errors.Is.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrGeneratorUnavailable = errors.New("response generator unavailable")
	ErrNotifierFailure      = errors.New("notifier failure")
	ErrStoreUnavailable     = errors.New("session store unavailable")
)

// InputError describes rejected visitor input. Prompt is the prompt the
// visitor should answer again; no session state was changed.
type InputError struct {
	Field  string
	Reason string
	Prompt string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
