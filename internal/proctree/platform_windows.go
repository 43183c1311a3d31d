//go:build windows

package proctree

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a running process.
const stillActive = 259

type windowsPlatform struct{}

func newPlatform() Platform {
	return windowsPlatform{}
}

// Snapshot walks a toolhelp snapshot, falling back to gopsutil when the
// snapshot cannot be taken.
func (windowsPlatform) Snapshot(ctx context.Context) ([]Record, error) {
	records, err := toolhelpSnapshot()
	if err == nil {
		return records, nil
	}
	return psSnapshot(ctx)
}

func toolhelpSnapshot() ([]Record, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer func() { _ = windows.CloseHandle(snapshot) }()

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("Process32First failed: %w", err)
	}

	var records []Record
	for {
		records = append(records, Record{PID: int(entry.ProcessID), PPID: int(entry.ParentProcessID)})
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return records, nil
			}
			return nil, fmt.Errorf("Process32Next failed: %w", err)
		}
	}
}

// Signal terminates pid. Windows has no graceful equivalent to POSIX signals
// for arbitrary processes, so sig is ignored.
func (windowsPlatform) Signal(pid int, _ syscall.Signal) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return ErrProcessGone
		}
		return err
	}
	defer func() { _ = windows.CloseHandle(h) }()

	if err := windows.TerminateProcess(h, 1); err != nil {
		// Access is denied once the process has already exited.
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) && exited(h) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}

func (windowsPlatform) Alive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = windows.CloseHandle(h) }()
	return isRunning(h)
}

func isRunning(h windows.Handle) bool {
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

// exited reports whether the process behind h is known to have exited. A
// failed query is not proof of exit.
func exited(h windows.Handle) bool {
	var code uint32
	return windows.GetExitCodeProcess(h, &code) == nil && code != stillActive
}

func (windowsPlatform) Graceful() bool {
	return false
}
