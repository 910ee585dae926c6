package acquisition

import (
	"errors"
	"fmt"

	"forcetrial/internal/trial"
)

// ErrNotRunning is returned by Stop when there is no run to stop or its
// record was already collected, and by Wait before the first run.
var ErrNotRunning = errors.New("acquisition is not running")

// AlreadyRunningError is returned by Start while a run is in progress. The
// existing run is left untouched.
type AlreadyRunningError struct {
	State State
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("acquisition already in progress (state: %s)", e.State)
}

// IOFailure reports a failure to open, flush or read the sample channel.
// Partial holds whatever was recorded before the failure.
type IOFailure struct {
	Op      string
	Err     error
	Partial trial.Snapshot
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("sample channel %s failed after %d samples: %v", e.Op, e.Partial.Len(), e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }
