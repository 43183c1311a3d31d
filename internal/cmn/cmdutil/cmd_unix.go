//go:build !windows

package cmdutil

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetupCommand puts the child in its own process group so terminal signals
// aimed at the orchestrator do not reach it directly.
func SetupCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// KillProcessGroup sends sig to the process group led by pid. A group that
// no longer exists is not an error.
func KillProcessGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
