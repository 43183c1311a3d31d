//go:build windows

package cmdutil

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// SetupCommand starts the child in a new process group so console control
// events for the orchestrator are not delivered to it.
func SetupCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// KillProcessGroup is a no-op on Windows; trees are terminated by walking the
// process table instead.
func KillProcessGroup(int, syscall.Signal) error {
	return nil
}
