// Package portutil allocates TCP ports for the auxiliary server and
// substitutes them into command lines.
package portutil

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// placeholderRegex matches $PORT and ${PORT} but not $PORTAL or $PORT_X.
var placeholderRegex = regexp.MustCompile(`\$(\{PORT\}|PORT\b)`)

// AllocateFreePort returns preferred when it can be bound on host, otherwise
// any free port chosen by the OS. The probe listener is closed before
// returning, so the port is a best-effort reservation only.
func AllocateFreePort(host string, preferred int) (int, error) {
	if preferred > 0 {
		if IsPortAvailable(host, preferred) {
			return preferred, nil
		}
	}
	return AllocatePort(host)
}

// AllocatePort asks the OS for a free port on host.
func AllocatePort(host string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer func() {
		_ = listener.Close()
	}()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %s", listener.Addr())
	}
	return addr.Port, nil
}

// IsPortAvailable reports whether port can currently be bound on host.
func IsPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// TransformCommand replaces every $PORT and ${PORT} in command with port.
//
//	TransformCommand("vite --port $PORT", 5173) == "vite --port 5173"
func TransformCommand(command string, port int) string {
	return placeholderRegex.ReplaceAllLiteralString(command, strconv.Itoa(port))
}

// HasPlaceholder reports whether command references $PORT.
func HasPlaceholder(command string) bool {
	return placeholderRegex.MatchString(command)
}
