package telemetry

import (
	"sync/atomic"
	"time"
)

// Stats counts what the orchestrator did during one dev session. All methods
// are safe for concurrent use.
type Stats struct {
	startTime time.Time

	compilesSucceeded atomic.Int64
	compilesFailed    atomic.Int64
	restarts          atomic.Int64
	unexpectedExits   atomic.Int64
	childPID          atomic.Int64
	port              atomic.Int64
}

// NewStats returns zeroed stats with the session start set to now.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// RecordCompile counts one finished compilation.
func (s *Stats) RecordCompile(success bool) {
	if success {
		s.compilesSucceeded.Add(1)
		return
	}
	s.compilesFailed.Add(1)
}

// RecordRestart counts one child (re)start and remembers its pid.
func (s *Stats) RecordRestart(pid int) {
	s.restarts.Add(1)
	s.childPID.Store(int64(pid))
}

// RecordUnexpectedExit counts a child that exited on its own.
func (s *Stats) RecordUnexpectedExit() {
	s.unexpectedExits.Add(1)
	s.childPID.Store(0)
}

// ClearChild records that no child is running.
func (s *Stats) ClearChild() {
	s.childPID.Store(0)
}

// SetPort records the allocated auxiliary port.
func (s *Stats) SetPort(port int) {
	s.port.Store(int64(port))
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Uptime            time.Duration `json:"uptime"`
	CompilesSucceeded int64         `json:"compilesSucceeded"`
	CompilesFailed    int64         `json:"compilesFailed"`
	Restarts          int64         `json:"restarts"`
	UnexpectedExits   int64         `json:"unexpectedExits"`
	ChildPID          int           `json:"childPid,omitempty"`
	Port              int           `json:"port,omitempty"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Uptime:            time.Since(s.startTime),
		CompilesSucceeded: s.compilesSucceeded.Load(),
		CompilesFailed:    s.compilesFailed.Load(),
		Restarts:          s.restarts.Load(),
		UnexpectedExits:   s.unexpectedExits.Load(),
		ChildPID:          int(s.childPID.Load()),
		Port:              int(s.port.Load()),
	}
}
