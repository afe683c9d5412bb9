package execution

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded reports that no execution slot became free within the
// admission timeout. The condition is transient; callers may retry later.
var ErrCapacityExceeded = errors.New("execution capacity exceeded")

// ValidationError rejects a malformed request before any container work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// ImageNotFoundError reports a configuration fault: no execution image is
// registered for the requested track. It is fatal and never retried.
type ImageNotFoundError struct {
	Track Track
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("no execution image registered for track %q", e.Track)
}

// RunnerFault reports an infrastructure failure talking to the container
// daemon, distinct from any user-code failure so callers can tell "our
// system failed" apart from "your code failed".
type RunnerFault struct {
	Op  string
	Err error
}

func (e *RunnerFault) Error() string {
	return fmt.Sprintf("sandbox runner fault: %s: %v", e.Op, e.Err)
}

func (e *RunnerFault) Unwrap() error { return e.Err }

// IsUserOutcome reports whether err represents an expected outcome of running
// untrusted code rather than an infrastructure problem. User outcomes are
// always representable as a Result; they are never propagated as errors.
func IsUserOutcome(err error) bool {
	if err == nil {
		return true
	}
	var fault *RunnerFault
	var missing *ImageNotFoundError
	var invalid *ValidationError
	if errors.As(err, &fault) || errors.As(err, &missing) || errors.As(err, &invalid) {
		return false
	}
	return !errors.Is(err, ErrCapacityExceeded)
}
