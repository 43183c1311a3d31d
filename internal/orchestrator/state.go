package orchestrator

import (
	"fmt"
)

// State is the orchestrator lifecycle state. It only moves forward.
type State int

const (
	StateInitializing State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Exit codes returned by Run besides the child's own code.
const (
	ExitCodeOK           = 0
	ExitCodeSetupFailure = 2
)

// Setup stages reported in SetupError.
const (
	StageLock     = "lock"
	StagePort     = "port"
	StageAux      = "aux"
	StageCompiler = "compiler"
)

// SetupError reports a failure before the session reached Running.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// trigger identifies what started the shutdown.
type trigger int

const (
	triggerNone trigger = iota
	triggerSignal
	triggerStop
	triggerChildExit
	triggerContext
)

func (t trigger) String() string {
	switch t {
	case triggerSignal:
		return "signal"
	case triggerStop:
		return "stop"
	case triggerChildExit:
		return "child-exit"
	case triggerContext:
		return "context"
	default:
		return "none"
	}
}
