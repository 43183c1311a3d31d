package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotIdle is returned by Start when a child is already supervised.
var ErrNotIdle = errors.New("supervisor is not idle")

// SpawnError reports that the child could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TimeoutExceededError reports a child that outlived its stop timeout. The
// supervisor escalates to a forced kill and carries on.
type TimeoutExceededError struct {
	PID     int
	Timeout time.Duration
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("process %d still running after %s", e.PID, e.Timeout)
}
