//go:build unix

package signal

import "syscall"

var signalMap = map[syscall.Signal]signalInfo{
	syscall.SIGABRT:  {"SIGABRT", true},
	syscall.SIGALRM:  {"SIGALRM", true},
	syscall.SIGCHLD:  {"SIGCHLD", false},
	syscall.SIGCONT:  {"SIGCONT", false},
	syscall.SIGHUP:   {"SIGHUP", true},
	syscall.SIGINT:   {"SIGINT", true},
	syscall.SIGKILL:  {"SIGKILL", true},
	syscall.SIGPIPE:  {"SIGPIPE", true},
	syscall.SIGQUIT:  {"SIGQUIT", true},
	syscall.SIGSTOP:  {"SIGSTOP", false},
	syscall.SIGTERM:  {"SIGTERM", true},
	syscall.SIGTSTP:  {"SIGTSTP", false},
	syscall.SIGUSR1:  {"SIGUSR1", true},
	syscall.SIGUSR2:  {"SIGUSR2", true},
	syscall.SIGWINCH: {"SIGWINCH", false},
}
