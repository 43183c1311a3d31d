//go:build unix

package proctree

import (
	"context"
	"errors"
	"slices"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

type unixPlatform struct{}

func newPlatform() Platform {
	return unixPlatform{}
}

func (unixPlatform) Snapshot(ctx context.Context) ([]Record, error) {
	return psSnapshot(ctx)
}

func (unixPlatform) Signal(pid int, sig syscall.Signal) error {
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrProcessGone
	}
	return err
}

// Alive probes pid with signal 0. EPERM means the process exists but belongs
// to someone else. Zombies count as gone: they have exited and only wait to
// be reaped.
func (unixPlatform) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return !errors.Is(err, process.ErrorProcessNotRunning)
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	return !slices.Contains(status, process.Zombie)
}

func (unixPlatform) Graceful() bool {
	return true
}
