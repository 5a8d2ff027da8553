package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a malformed query or candidate batch.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration signals an invalid pipeline or step configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrRemoteScoring signals a failed or timed out remote scoring call.
	ErrRemoteScoring = errors.New("remote scoring failed")
)

// RemoteScoringError wraps ErrRemoteScoring with the step that issued the call
// and the collaborator's failure.
type RemoteScoringError struct {
	Step  string
	Cause error
}

func (e *RemoteScoringError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: step %q", ErrRemoteScoring.Error(), e.Step)
	}
	return fmt.Sprintf("%s: step %q: %s", ErrRemoteScoring.Error(), e.Step, e.Cause.Error())
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *RemoteScoringError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRemoteScoring}
	}
	return []error{ErrRemoteScoring, e.Cause}
}

// NewRemoteScoringError creates a remote scoring error for the given step.
func NewRemoteScoringError(step string, cause error) error {
	return &RemoteScoringError{Step: step, Cause: cause}
}

// InvalidInputf formats an error wrapping ErrInvalidInput.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Configurationf formats an error wrapping ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
