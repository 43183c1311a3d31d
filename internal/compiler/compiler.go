// Package compiler runs the project's build command once or in watch mode
// and reports each compilation as a sequence of events.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStopped is returned by Start after Stop has been called.
	ErrStopped = errors.New("compiler stopped")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("compiler already started")
)

// EventKind identifies a compiler event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventSucceeded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Diagnostic is one problem reported by the build. File, Line and Column are
// zero when the output did not carry a location.
type Diagnostic struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	switch {
	case d.File == "":
		return d.Message
	case d.Line == 0:
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	case d.Column == 0:
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
	}
}

// Event is delivered to handlers registered with On. Succeeded events carry
// no diagnostics; Failed events carry at least one.
type Event struct {
	Kind        EventKind
	Diagnostics []Diagnostic
	// Duration of the compilation; zero for Started.
	Duration time.Duration
}

// Handler receives compiler events.
type Handler func(Event)

// Mode selects between a single compilation and a watch loop.
type Mode int

const (
	ModeOneShot Mode = iota
	ModeWatch
)

// Compiler is an incremental build driver.
type Compiler interface {
	// Start begins compiling. In ModeOneShot it blocks until the first
	// result and returns nil or a *Failure. In ModeWatch it compiles once
	// immediately, returns, and recompiles on every relevant file change
	// until Stop is called or ctx is done.
	Start(ctx context.Context, mode Mode) error
	// On registers a handler. Handlers for a kind run in registration order
	// on a dispatcher goroutine; the compile loop never waits for them.
	On(kind EventKind, h Handler)
	// Stop ends the loop and releases file watches. No events are delivered
	// after Stop returns.
	Stop()
}

// Failure is returned by a one-shot compilation that failed.
type Failure struct {
	Diagnostics []Diagnostic
}

func (f *Failure) Error() string {
	if len(f.Diagnostics) == 0 {
		return "compilation failed"
	}
	lines := make([]string, 0, len(f.Diagnostics))
	for _, d := range f.Diagnostics {
		lines = append(lines, d.String())
	}
	return fmt.Sprintf("compilation failed with %d diagnostic(s):\n%s", len(f.Diagnostics), strings.Join(lines, "\n"))
}
