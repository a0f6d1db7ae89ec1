package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
var (
	// ErrJobNotFound indicates no record exists for the requested id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyRunning indicates a job of the same type is still running.
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrJobBlocked indicates a job of a mutually exclusive type is running.
	ErrJobBlocked = errors.New("job blocked by mutex group")

	// ErrUnknownJobType indicates no runnable is registered for a job type.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrExecutorClosed indicates work was submitted after Shutdown.
	ErrExecutorClosed = errors.New("executor is shut down")
)

// ConfigError reports invalid job configuration detected at startup.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("jobs config: %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error indicates a missing job record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}
