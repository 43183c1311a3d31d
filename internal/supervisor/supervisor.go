// Package supervisor owns at most one child process at a time and replaces
// it on request, terminating the previous process tree first.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/backoff"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/proctree"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/signal"
)

// State is the supervisor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProcessTree is the subset of *proctree.Tree the supervisor needs.
type ProcessTree interface {
	DescendantsOf(ctx context.Context, pid int) ([]int, error)
	Terminate(ctx context.Context, pid int, sig syscall.Signal) error
	Kill(ctx context.Context, pid int) error
	IsAlive(pid int) bool
}

var _ ProcessTree = (*proctree.Tree)(nil)

// Config controls how children are stopped.
type Config struct {
	// Signal is delivered to the child tree first.
	Signal syscall.Signal
	// StopTimeout bounds the wait for the child to exit before it is
	// force-killed.
	StopTimeout time.Duration
	// PollInterval is the first liveness poll interval; it doubles after
	// every poll.
	PollInterval time.Duration
}

const maxPollInterval = 250 * time.Millisecond

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces the default os/exec spawner.
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) {
		s.spawner = sp
	}
}

// WithProcessTree replaces the default OS process tree.
func WithProcessTree(t ProcessTree) Option {
	return func(s *Supervisor) {
		s.tree = t
	}
}

// Supervisor runs one child process at a time.
//
// Start, Restart and Shutdown are serialized: a Restart that arrives while
// another is still stopping or spawning waits for it. Restarts that queue up
// behind a running one are coalesced and the most recent LaunchSpec wins.
type Supervisor struct {
	cfg     Config
	spawner Spawner
	tree    ProcessTree

	// opMu serializes lifecycle operations; mu guards the fields below.
	opMu sync.Mutex
	mu   sync.Mutex

	state      State
	child      *child
	pending    *LaunchSpec
	pendingSeq uint64
	appliedSeq uint64
	onExit     []func(exitCode int)
}

type child struct {
	handle  Handle
	runID   string
	started time.Time
	// stopping detaches the exit observer. It is set under Supervisor.mu
	// before termination so a requested exit is never reported.
	stopping bool
}

// New creates an idle Supervisor.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.Signal == 0 {
		cfg.Signal = syscall.SIGTERM
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 25 * time.Millisecond
	}

	s := &Supervisor{cfg: cfg, state: StateIdle}
	for _, opt := range opts {
		opt(s)
	}
	if s.spawner == nil {
		s.spawner = &ExecSpawner{}
	}
	if s.tree == nil {
		s.tree = proctree.New()
	}
	return s
}

// OnUnexpectedExit registers fn to be called with the exit code whenever the
// current child exits without being asked to. It fires at most once per
// child and never for a child being stopped by Restart or Shutdown.
func (s *Supervisor) OnUnexpectedExit(fn func(exitCode int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = append(s.onExit, fn)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the pid of the current child, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return 0
	}
	return s.child.handle.PID()
}

// Start spawns a child. It fails with ErrNotIdle when a child is already
// supervised and with a *SpawnError when the process cannot be started.
func (s *Supervisor) Start(ctx context.Context, spec LaunchSpec) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateIdle || s.child != nil {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.mu.Unlock()

	return s.spawn(ctx, spec)
}

// Restart replaces the current child with one started from spec. Without a
// current child it behaves like Start. Termination of the previous tree is
// always attempted; the new child is not spawned when ctx is done by then.
func (s *Supervisor) Restart(ctx context.Context, spec LaunchSpec) error {
	s.mu.Lock()
	s.pendingSeq++
	seq := s.pendingSeq
	s.pending = &spec
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.appliedSeq >= seq {
		// A later restart was applied on our behalf, or Shutdown
		// superseded this one.
		s.mu.Unlock()
		logger.Debug(ctx, "Restart coalesced", tag.Count(int(seq)))
		return nil
	}
	spec = *s.pending
	s.appliedSeq = s.pendingSeq
	s.pending = nil
	s.mu.Unlock()

	if err := s.stopCurrent(ctx); err != nil {
		logger.Warn(ctx, "Previous child did not stop cleanly", tag.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.spawn(ctx, spec)
}

// Shutdown stops the current child, if any, and drops pending restarts. It
// is safe to call repeatedly and from any state; the supervisor ends idle.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.appliedSeq = s.pendingSeq
	s.pending = nil
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.stopCurrent(ctx)
}

func (s *Supervisor) spawn(ctx context.Context, spec LaunchSpec) error {
	s.setState(StateStarting)

	runID := newRunID()
	runCtx := logger.WithValues(ctx, tag.RunID(runID))

	handle, err := s.spawner.Spawn(runCtx, spec)
	if err != nil {
		s.setState(StateIdle)
		return &SpawnError{Path: spec.Path, Err: err}
	}

	c := &child{handle: handle, runID: runID, started: time.Now()}
	s.mu.Lock()
	s.child = c
	s.state = StateRunning
	s.mu.Unlock()

	logger.Info(runCtx, "Child started", tag.PID(handle.PID()), tag.Command(spec.Path))
	go s.observe(runCtx, c)
	return nil
}

// observe waits for c to exit and reports it unless it was asked to stop.
func (s *Supervisor) observe(ctx context.Context, c *child) {
	<-c.handle.Done()
	code := c.handle.ExitCode()

	s.mu.Lock()
	if c.stopping {
		s.mu.Unlock()
		return
	}
	if s.child == c {
		s.child = nil
		s.state = StateIdle
	}
	handlers := append([]func(int){}, s.onExit...)
	s.mu.Unlock()

	logger.Warn(ctx, "Child exited unexpectedly",
		tag.PID(c.handle.PID()),
		tag.ExitCode(code),
		tag.Duration(time.Since(c.started)),
	)
	for _, fn := range handlers {
		fn(code)
	}
}

// stopCurrent terminates the current child tree and waits for the child to
// go away. Cancellation of ctx does not interrupt termination.
func (s *Supervisor) stopCurrent(ctx context.Context) error {
	s.mu.Lock()
	c := s.child
	if c == nil {
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	c.stopping = true
	s.state = StateStopping
	s.mu.Unlock()

	err := s.terminate(context.WithoutCancel(ctx), c)

	s.mu.Lock()
	if s.child == c {
		s.child = nil
	}
	s.state = StateIdle
	s.mu.Unlock()

	return err
}

func (s *Supervisor) terminate(ctx context.Context, c *child) error {
	pid := c.handle.PID()
	ctx = logger.WithValues(ctx, tag.RunID(c.runID))
	logger.Info(ctx, "Stopping child",
		tag.PID(pid),
		tag.Signal(signal.Name(s.cfg.Signal)),
	)

	// Descendants are recorded up front: once the child is gone they are
	// reparented and no longer reachable from its pid.
	descendants, err := s.tree.DescendantsOf(ctx, pid)
	if err != nil {
		logger.Debug(ctx, "Cannot list descendants", tag.PID(pid), tag.Error(err))
	}

	var errs []error
	if err := s.tree.Terminate(ctx, pid, s.cfg.Signal); err != nil {
		logger.Warn(ctx, "Signal delivery incomplete", tag.PID(pid), tag.Error(err))
		errs = append(errs, err)
	}

	if s.waitGone(ctx, c) {
		logger.Info(ctx, "Child stopped", tag.PID(pid), tag.Duration(time.Since(c.started)))
		if err := s.sweep(ctx, pid, descendants); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	timeout := &TimeoutExceededError{PID: pid, Timeout: s.cfg.StopTimeout}
	errs = append(errs, timeout)
	logger.Warn(ctx, "Child did not exit in time; killing", tag.PID(pid), tag.Timeout(s.cfg.StopTimeout))

	if err := s.tree.Kill(ctx, pid); err != nil {
		errs = append(errs, err)
	}
	if !s.waitGone(ctx, c) {
		logger.Error(ctx, "Child still alive after kill; continuing", tag.PID(pid))
	}
	if err := s.sweep(ctx, pid, descendants); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sweep waits up to StopTimeout for the recorded descendants of a stopped
// child and force-kills the ones that outlive it.
func (s *Supervisor) sweep(ctx context.Context, pid int, descendants []int) error {
	survivors := s.waitPIDs(ctx, descendants)
	if len(survivors) == 0 {
		return nil
	}
	logger.Warn(ctx, "Descendants outlived the child; killing",
		tag.PID(pid),
		tag.Count(len(survivors)),
		tag.Timeout(s.cfg.StopTimeout),
	)

	var errs []error
	for _, d := range survivors {
		if err := s.tree.Kill(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	if left := s.waitPIDs(ctx, survivors); len(left) > 0 {
		logger.Error(ctx, "Descendants still alive after kill; continuing", tag.PID(pid), tag.Count(len(left)))
	}
	return errors.Join(errs...)
}

// waitPIDs polls until none of pids is alive or StopTimeout elapses and
// returns the ones still alive.
func (s *Supervisor) waitPIDs(ctx context.Context, pids []int) []int {
	if len(pids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackoffPolicy(s.cfg.PollInterval)
	policy.MaxInterval = maxPollInterval

	alive := pids
	_ = backoff.Retry(ctx, func(context.Context) error {
		alive = slices.DeleteFunc(slices.Clone(alive), func(p int) bool { return !s.tree.IsAlive(p) })
		if len(alive) > 0 {
			return errStillRunning
		}
		return nil
	}, policy, nil)
	return alive
}

var errStillRunning = errors.New("process still running")

// waitGone polls with exponential backoff until the child is reaped or its
// pid no longer exists, bounded by StopTimeout.
func (s *Supervisor) waitGone(ctx context.Context, c *child) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackoffPolicy(s.cfg.PollInterval)
	policy.MaxInterval = maxPollInterval

	pid := c.handle.PID()
	err := backoff.Retry(ctx, func(context.Context) error {
		select {
		case <-c.handle.Done():
			return nil
		default:
		}
		if !s.tree.IsAlive(pid) {
			return nil
		}
		return errStillRunning
	}, policy, nil)

	return err == nil
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
