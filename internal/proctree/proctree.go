// Package proctree discovers and terminates OS process trees.
//
// A fresh snapshot of the process table is taken for every request; nothing
// is cached between calls, so pids reused by the OS are never confused with
// an earlier process.
package proctree

import (
	"context"
	"errors"
	"syscall"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/signal"
)

// Platform is the OS-specific surface a Tree is built on.
type Platform interface {
	// Snapshot lists every process visible to the caller.
	Snapshot(ctx context.Context) ([]Record, error)
	// Signal delivers sig to pid, returning ErrProcessGone when pid does
	// not exist.
	Signal(pid int, sig syscall.Signal) error
	// Alive reports whether pid exists and has not exited.
	Alive(pid int) bool
	// Graceful is false on platforms where every delivery is a forced kill.
	Graceful() bool
}

// Tree terminates processes together with their descendants.
type Tree struct {
	platform Platform
}

// New returns a Tree for the current OS.
func New() *Tree {
	return NewWithPlatform(newPlatform())
}

// NewWithPlatform returns a Tree backed by p.
func NewWithPlatform(p Platform) *Tree {
	return &Tree{platform: p}
}

// Snapshot returns the current process table.
func (t *Tree) Snapshot(ctx context.Context) ([]Record, error) {
	return t.platform.Snapshot(ctx)
}

// DescendantsOf returns all transitive children of pid, excluding pid.
func (t *Tree) DescendantsOf(ctx context.Context, pid int) ([]int, error) {
	records, err := t.platform.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(records).Descendants(pid), nil
}

// IsAlive reports whether pid exists. It never fails; unknown pids are dead.
func (t *Tree) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return t.platform.Alive(pid)
}

// Terminate signals every descendant of pid and then pid itself. Pids that
// vanish along the way are ignored. Other delivery failures do not stop the
// walk and are returned together as a *SignalDeliveryError.
//
// When the process table cannot be read only pid is signalled. On platforms
// without graceful signals the whole tree is force-killed regardless of sig.
func (t *Tree) Terminate(ctx context.Context, pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if !t.platform.Graceful() {
		sig = syscall.SIGKILL
	}

	descendants, err := t.DescendantsOf(ctx, pid)
	if err != nil {
		var unsupported *PlatformUnsupportedError
		if !errors.As(err, &unsupported) {
			return err
		}
		logger.Warn(ctx, "Cannot enumerate processes; signalling the root only",
			tag.PID(pid),
			tag.Error(err),
		)
		descendants = nil
	}

	targets := append(descendants, pid)
	logger.Debug(ctx, "Terminating process tree",
		tag.PID(pid),
		tag.Signal(signal.Name(sig)),
		tag.Count(len(targets)),
	)

	failed := make(map[int]error)
	for _, target := range targets {
		if err := t.platform.Signal(target, sig); err != nil && !errors.Is(err, ErrProcessGone) {
			failed[target] = err
		}
	}
	if len(failed) > 0 {
		return &SignalDeliveryError{Signal: sig, Failed: failed}
	}
	return nil
}

// Kill force-kills pid and its descendants.
func (t *Tree) Kill(ctx context.Context, pid int) error {
	return t.Terminate(ctx, pid, syscall.SIGKILL)
}
