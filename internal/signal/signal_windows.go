//go:build windows

package signal

import "syscall"

// Windows processes are force-killed as a tree; these names exist so that
// configuration written on POSIX still validates.
var signalMap = map[syscall.Signal]signalInfo{
	syscall.SIGHUP:  {"SIGHUP", true},
	syscall.SIGINT:  {"SIGINT", true},
	syscall.SIGKILL: {"SIGKILL", true},
	syscall.SIGTERM: {"SIGTERM", true},
}
