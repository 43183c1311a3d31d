// Package cmdutil holds helpers for turning configured command lines into
// runnable processes: splitting, environment layering and per-OS process
// attributes.
package cmdutil

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

var ErrCommandIsEmpty = errors.New("command is empty")

// SplitCommand splits a shell-style command line into the executable and its
// arguments. Quotes are honored and variables are expanded with lookup; a nil
// lookup uses the process environment.
func SplitCommand(cmd string, lookup func(string) string) (string, []string, error) {
	if strings.TrimSpace(cmd) == "" {
		return "", nil, ErrCommandIsEmpty
	}
	if lookup == nil {
		lookup = os.Getenv
	}

	fields, err := shell.Fields(cmd, lookup)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse command %q: %w", cmd, err)
	}
	if len(fields) == 0 {
		return "", nil, ErrCommandIsEmpty
	}
	return fields[0], fields[1:], nil
}
