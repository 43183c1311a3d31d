package compiler

import (
	"sync"
)

// emitter delivers events to handlers in order on its own goroutine so that
// emitting never blocks on a slow handler.
type emitter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[EventKind][]Handler
	queue    []Event
	closed   bool
	// idle is true while nothing is queued or being delivered.
	idle bool
	done chan struct{}
}

func newEmitter() *emitter {
	e := &emitter{
		handlers: make(map[EventKind][]Handler),
		idle:     true,
		done:     make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

func (e *emitter) on(kind EventKind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], h)
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, ev)
	e.idle = false
	e.cond.Broadcast()
}

// flush blocks until every queued event has been delivered.
func (e *emitter) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.idle && !e.closed {
		e.cond.Wait()
	}
}

// close drops undelivered events and waits for an in-flight delivery to end.
func (e *emitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.done
}

func (e *emitter) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.idle = true
			e.cond.Broadcast()
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		handlers := append([]Handler(nil), e.handlers[ev.Kind]...)
		e.mu.Unlock()

		for _, h := range handlers {
			h(ev)
		}
	}
}
