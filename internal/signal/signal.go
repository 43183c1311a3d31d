// Package signal maps signal names from configuration to OS signals.
package signal

import (
	"fmt"
	"strings"
	"syscall"
)

type signalInfo struct {
	name          string
	isTermination bool
}

var nameToSignal = map[string]syscall.Signal{}

func init() {
	for sig, info := range signalMap {
		nameToSignal[info.name] = sig
	}
}

// Parse resolves a signal name such as "SIGTERM", "term" or "15".
func Parse(name string) (syscall.Signal, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return 0, fmt.Errorf("empty signal name")
	}
	if !strings.HasPrefix(s, "SIG") {
		if n, ok := parseNumber(s); ok {
			if _, known := signalMap[syscall.Signal(n)]; known {
				return syscall.Signal(n), nil
			}
			return 0, fmt.Errorf("unknown signal number %d", n)
		}
		s = "SIG" + s
	}
	if sig, ok := nameToSignal[s]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// Name returns the canonical name of sig, or its number when unknown.
func Name(sig syscall.Signal) string {
	if info, ok := signalMap[sig]; ok {
		return info.name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// IsTerminationSignal reports whether sig's default action ends the process.
func IsTerminationSignal(sig syscall.Signal) bool {
	return signalMap[sig].isTermination
}

func parseNumber(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, len(s) > 0
}
