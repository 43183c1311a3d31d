// Package devserver implements the auxiliary server that runs next to the
// supervised application during a dev session.
package devserver

import (
	"context"
	"encoding/json"
	"time"
)

// Server is an auxiliary server bound to the session port. Stop must be safe
// to call more than once and before Start.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	URL() string
}

// Notifier receives orchestrator events for connected clients.
type Notifier interface {
	Notify(ev Event)
}

// Event is one live-reload message sent to websocket clients.
type Event struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event types broadcast during a session.
const (
	EventCompileStarted   = "compile-started"
	EventCompileSucceeded = "compile-succeeded"
	EventCompileFailed    = "compile-failed"
	EventChildRestarted   = "child-restarted"
	EventChildExited      = "child-exited"
)

// NewEvent builds an Event with data marshalled to JSON. Data that cannot be
// marshalled is dropped.
func NewEvent(typ string, data any) Event {
	ev := Event{Type: typ, Time: time.Now()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Nop is a Server that does nothing; it is used when the auxiliary server is
// disabled.
type Nop struct{}

var (
	_ Server   = Nop{}
	_ Notifier = Nop{}
)

func (Nop) Start(context.Context) error { return nil }
func (Nop) Stop(context.Context) error  { return nil }
func (Nop) URL() string                 { return "" }
func (Nop) Notify(Event)                {}
