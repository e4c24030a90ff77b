package updatemanager

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the coordinator cannot determine its own identity
	ErrConfiguration = errors.New("update coordinator is not configured")
	// ErrConcurrentUpdate is returned when a process is requested while another is active
	ErrConcurrentUpdate = errors.New("an update process is already in progress")
	// ErrStopped is returned when a process is requested after Stop
	ErrStopped = errors.New("update coordinator is stopped")
	// ErrInvalidTransition fails a process that tried to re-enter or skip back a phase
	ErrInvalidTransition = errors.New("invalid update phase transition")

	ErrFetch        = errors.New("update feed fetch failed")
	ErrDownload     = errors.New("update download failed")
	ErrVerification = errors.New("update verification failed")
	ErrDecryption   = errors.New("update decryption failed")
	ErrInstall      = errors.New("update installation failed")
)

// ConfigurationError wraps the reason the bundle could not be resolved
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrConfiguration, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// PhaseError is the failure a process concluded with. Kind is one of the ErrFetch,
// ErrDownload, ErrVerification, ErrDecryption, ErrInstall sentinels or
// ErrInvalidTransition.
type PhaseError struct {
	Kind  error
	Phase Phase
	Err   error
}

func newPhaseError(kind error, phase Phase, err error) *PhaseError {
	return &PhaseError{Kind: kind, Phase: phase, Err: err}
}

func (e *PhaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
