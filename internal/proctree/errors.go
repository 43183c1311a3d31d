package proctree

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"syscall"

	"github.com/samber/lo"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/signal"
)

// ErrProcessGone reports that a pid no longer exists. Terminate swallows it;
// a process exiting between snapshot and signal is expected.
var ErrProcessGone = errors.New("no such process")

// PlatformUnsupportedError is returned when the process table cannot be
// enumerated on this host.
type PlatformUnsupportedError struct {
	Op  string
	Err error
}

func (e *PlatformUnsupportedError) Error() string {
	return fmt.Sprintf("process table %s unsupported: %v", e.Op, e.Err)
}

func (e *PlatformUnsupportedError) Unwrap() error {
	return e.Err
}

// SignalDeliveryError lists the pids a signal could not be delivered to.
// Delivery continues across the rest of the set before it is returned.
type SignalDeliveryError struct {
	Signal syscall.Signal
	Failed map[int]error
}

func (e *SignalDeliveryError) Error() string {
	pids := e.PIDs()
	parts := make([]string, 0, len(pids))
	for _, pid := range pids {
		parts = append(parts, fmt.Sprintf("%d: %v", pid, e.Failed[pid]))
	}
	return fmt.Sprintf("failed to deliver %s to %d process(es): %s",
		signal.Name(e.Signal), len(pids), strings.Join(parts, "; "))
}

// PIDs returns the unconfirmed pids in ascending order.
func (e *SignalDeliveryError) PIDs() []int {
	pids := lo.Keys(e.Failed)
	slices.Sort(pids)
	return pids
}
