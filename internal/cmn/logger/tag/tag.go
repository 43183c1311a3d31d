// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention for consistency.
// Use these functions instead of raw strings to ensure consistent
// log output across the codebase.
package tag

import (
	"log/slog"
	"time"
)

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Process tags

// PID creates a tag for an OS process id.
func PID(pid int) slog.Attr {
	return slog.Int("pid", pid)
}

// PPID creates a tag for a parent process id.
func PPID(pid int) slog.Attr {
	return slog.Int("ppid", pid)
}

// ExitCode creates a tag for a process exit code.
func ExitCode(code int) slog.Attr {
	return slog.Int("exit-code", code)
}

// Signal creates a tag for a signal name.
func Signal(sig string) slog.Attr {
	return slog.String("signal", sig)
}

// Command creates a tag for a command line.
func Command(cmd string) slog.Attr {
	return slog.String("cmd", cmd)
}

// RunID creates a tag for the id of one supervised child lifetime.
func RunID(id string) slog.Attr {
	return slog.String("run-id", id)
}

// Stream creates a tag for an output stream name (stdout, stderr).
func Stream(name string) slog.Attr {
	return slog.String("stream", name)
}

// Path and file tags

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// Network tags

// Port creates a tag for a TCP port.
func Port(port int) slog.Attr {
	return slog.Int("port", port)
}

// Host creates a tag for a host name.
func Host(host string) slog.Attr {
	return slog.String("host", host)
}

// URL creates a tag for URLs.
func URL(url string) slog.Attr {
	return slog.String("url", url)
}

// Timing and counters

// Duration creates a tag for elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Timeout creates a tag for a timeout bound.
func Timeout(d time.Duration) slog.Attr {
	return slog.Duration("timeout", d)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Count creates a tag for generic counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// State creates a tag for a state machine state.
func State(s string) slog.Attr {
	return slog.String("state", s)
}

// Kind creates a tag for a variant name (event kind, server kind).
func Kind(k string) slog.Attr {
	return slog.String("kind", k)
}
