// Package orchestrator ties the compiler, the process supervisor and the
// auxiliary server into one dev session.
package orchestrator

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/dirlock"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/portutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/compiler"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/service/devserver"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/supervisor"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/telemetry"
)

// Supervisor is the part of supervisor.Supervisor the orchestrator drives.
type Supervisor interface {
	Restart(ctx context.Context, spec supervisor.LaunchSpec) error
	Shutdown(ctx context.Context) error
	OnUnexpectedExit(fn func(exitCode int))
	PID() int
}

// SpecBuilder builds the child's LaunchSpec for the session port.
type SpecBuilder func(port int) (supervisor.LaunchSpec, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAuxFactory replaces the auxiliary server factory.
func WithAuxFactory(f AuxFactory) Option {
	return func(o *Orchestrator) {
		o.newAux = f
	}
}

// WithSpecBuilder replaces the LaunchSpec builder.
func WithSpecBuilder(b SpecBuilder) Option {
	return func(o *Orchestrator) {
		o.buildSpec = b
	}
}

// WithStats records session statistics into stats.
func WithStats(stats *telemetry.Stats) Option {
	return func(o *Orchestrator) {
		o.stats = stats
	}
}

// WithSignals sets the OS signals that trigger shutdown. No signals disables
// signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Orchestrator) {
		o.signals = sigs
	}
}

// WithOnRunning registers fn to be called once the port is bound and the
// auxiliary server is up, before the first compile.
func WithOnRunning(fn func(port int, auxURL string)) Option {
	return func(o *Orchestrator) {
		o.onRunning = fn
	}
}

// WithoutLock skips the single-instance lock on the work dir.
func WithoutLock() Option {
	return func(o *Orchestrator) {
		o.lock = false
	}
}

// Orchestrator runs one dev session: it allocates the port, starts the
// auxiliary server, restarts the child on every successful compile and tears
// everything down exactly once.
type Orchestrator struct {
	cfg       *config.Config
	compiler  compiler.Compiler
	sup       Supervisor
	newAux    AuxFactory
	buildSpec SpecBuilder
	stats     *telemetry.Stats
	signals   []os.Signal
	lock      bool
	onRunning func(port int, auxURL string)

	mu       sync.Mutex
	state    State
	port     int
	aux      devserver.Server
	notifier devserver.Notifier

	restartCtx    context.Context
	restartCancel context.CancelFunc
	// inflight tracks restart goroutines; Add happens only while Running.
	inflight sync.WaitGroup

	triggerOnce sync.Once
	stopCh      chan struct{}
	reason      trigger
	exitCode    int

	done chan struct{}
}

// New creates an orchestrator for cfg. The compiler and supervisor are owned
// by the caller but stopped by Run.
func New(cfg *config.Config, c compiler.Compiler, sup Supervisor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		compiler: c,
		sup:      sup,
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
		lock:     true,
		state:    StateInitializing,
		notifier: devserver.Nop{},
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.newAux == nil {
		o.newAux = NewAuxFactory(cfg, o.stats)
	}
	if o.buildSpec == nil {
		o.buildSpec = func(port int) (supervisor.LaunchSpec, error) {
			return BuildLaunchSpec(cfg, port)
		}
	}
	if o.stats == nil {
		o.stats = telemetry.NewStats()
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Port returns the session port, or 0 before it is allocated.
func (o *Orchestrator) Port() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.port
}

// Done is closed when the session reaches Stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Stop requests shutdown. It returns immediately; use Done to wait.
func (o *Orchestrator) Stop() {
	o.fire(triggerStop, ExitCodeOK)
}

func (o *Orchestrator) fire(t trigger, code int) {
	o.triggerOnce.Do(func() {
		o.reason = t
		o.exitCode = code
		close(o.stopCh)
	})
}

// Run executes the session and blocks until it is stopped. It returns the
// child's exit code when the child ended the session, ExitCodeOK for any
// other trigger, and ExitCodeSetupFailure with a *SetupError when the
// session could not be set up.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	ctx = logger.WithValues(ctx, "component", "orchestrator")

	cleanup, err := o.setup(ctx)
	if err != nil {
		cleanup()
		o.setState(StateStopped)
		close(o.done)
		logger.Error(ctx, "Dev session setup failed", tag.Error(err))
		return ExitCodeSetupFailure, err
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	if len(o.signals) > 0 {
		g.Go(func() error {
			o.listenSignals(gctx)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-o.stopCh:
		case <-ctx.Done():
			o.fire(triggerContext, ExitCodeOK)
		}
		o.shutdown(ctx)
		return nil
	})
	_ = g.Wait()

	logger.Info(ctx, "Dev session stopped",
		tag.String("reason", o.reason.String()),
		tag.ExitCode(o.exitCode),
	)
	return o.exitCode, nil
}

// setup walks the session up to Running. The returned cleanup releases what
// setup acquired outside of the shutdown path and is never nil.
func (o *Orchestrator) setup(ctx context.Context) (func(), error) {
	var releases []func()
	cleanup := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	if o.lock {
		l, err := dirlock.New(o.cfg.Core.WorkDir)
		if err != nil {
			return cleanup, &SetupError{Stage: StageLock, Err: err}
		}
		if err := l.TryLock(); err != nil {
			return cleanup, &SetupError{Stage: StageLock, Err: err}
		}
		releases = append(releases, func() {
			if err := l.Unlock(); err != nil {
				logger.Warn(ctx, "Failed to release lock", tag.File(l.Path()), tag.Error(err))
			}
		})
	}

	port, err := portutil.AllocateFreePort(o.cfg.Aux.Host, o.cfg.Aux.PreferredPort)
	if err != nil {
		return cleanup, &SetupError{Stage: StagePort, Err: err}
	}
	o.stats.SetPort(port)

	aux, err := o.newAux(ctx, port)
	if err != nil {
		return cleanup, &SetupError{Stage: StageAux, Err: err}
	}
	if err := aux.Start(ctx); err != nil {
		_ = aux.Stop(ctx)
		return cleanup, &SetupError{Stage: StageAux, Err: err}
	}

	restartCtx, restartCancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	o.port = port
	o.aux = aux
	if n, ok := aux.(devserver.Notifier); ok {
		o.notifier = n
	}
	o.restartCtx, o.restartCancel = restartCtx, restartCancel
	o.mu.Unlock()

	o.sup.OnUnexpectedExit(func(code int) { o.onChildExit(ctx, code) })
	o.compiler.On(compiler.EventStarted, func(compiler.Event) {
		o.notify(devserver.NewEvent(devserver.EventCompileStarted, nil))
	})
	o.compiler.On(compiler.EventSucceeded, func(ev compiler.Event) { o.onSucceeded(ctx, ev) })
	o.compiler.On(compiler.EventFailed, func(ev compiler.Event) { o.onFailed(ctx, ev) })

	// Running before the compiler starts so the first success is not dropped.
	o.setState(StateRunning)
	logger.Info(ctx, "Dev session running", tag.Port(port), tag.URL(aux.URL()))
	if o.onRunning != nil {
		o.onRunning(port, aux.URL())
	}

	if err := o.compiler.Start(ctx, compiler.ModeWatch); err != nil {
		o.setState(StateShuttingDown)
		restartCancel()
		o.compiler.Stop()
		_ = aux.Stop(ctx)
		return cleanup, &SetupError{Stage: StageCompiler, Err: err}
	}
	return cleanup, nil
}

func (o *Orchestrator) listenSignals(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, o.signals...)
	defer signal.Stop(ch)

	// Registered until Stopped; a repeated interrupt must not kill devloop
	// while it is still tearing the child down.
	for {
		select {
		case sig := <-ch:
			select {
			case <-o.stopCh:
				logger.Info(ctx, "Received signal; already shutting down", tag.Signal(sig.String()))
			default:
				logger.Info(ctx, "Received signal; shutting down", tag.Signal(sig.String()))
			}
			o.fire(triggerSignal, ExitCodeOK)
		case <-o.done:
			return
		}
	}
}

func (o *Orchestrator) onSucceeded(ctx context.Context, ev compiler.Event) {
	o.stats.RecordCompile(true)
	o.notify(devserver.NewEvent(devserver.EventCompileSucceeded, map[string]any{
		"durationMs": ev.Duration.Milliseconds(),
	}))

	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	port, restartCtx := o.port, o.restartCtx
	o.inflight.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.inflight.Done()
		o.restart(ctx, restartCtx, port)
	}()
}

func (o *Orchestrator) restart(ctx, restartCtx context.Context, port int) {
	spec, err := o.buildSpec(port)
	if err != nil {
		logger.Error(ctx, "Failed to build launch spec", tag.Error(err))
		return
	}

	err = o.sup.Restart(restartCtx, spec)
	switch {
	case err == nil:
		pid := o.sup.PID()
		o.stats.RecordRestart(pid)
		o.notify(devserver.NewEvent(devserver.EventChildRestarted, map[string]int{"pid": pid, "port": port}))
		logger.Info(ctx, "Application (re)started", tag.PID(pid), tag.Port(port))
	case errors.Is(err, context.Canceled):
		logger.Debug(ctx, "Restart abandoned; shutting down")
	default:
		// A child that cannot be spawned leaves the session running; the
		// next successful compile tries again.
		logger.Error(ctx, "Failed to restart application", tag.Error(err))
	}
}

func (o *Orchestrator) onFailed(ctx context.Context, ev compiler.Event) {
	o.stats.RecordCompile(false)
	o.notify(devserver.NewEvent(devserver.EventCompileFailed, map[string]any{
		"diagnostics": ev.Diagnostics,
	}))

	logger.Warn(ctx, "Compilation failed; keeping the current application", tag.Count(len(ev.Diagnostics)))
	for _, d := range ev.Diagnostics {
		logger.Write(ctx, d.String())
	}
}

func (o *Orchestrator) onChildExit(ctx context.Context, code int) {
	o.stats.RecordUnexpectedExit()
	o.notify(devserver.NewEvent(devserver.EventChildExited, map[string]int{"exitCode": code}))
	logger.Warn(ctx, "Application exited; shutting down", tag.ExitCode(code))
	o.fire(triggerChildExit, code)
}

// shutdown runs at most once, from Run.
func (o *Orchestrator) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	o.state = StateShuttingDown
	cancel, aux := o.restartCancel, o.aux
	o.mu.Unlock()
	logger.Info(ctx, "Shutting down", tag.State(StateShuttingDown.String()))

	// Pending restarts give up before spawning; one already spawning
	// finishes and is stopped by Shutdown below.
	cancel()
	if err := o.sup.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Application did not stop cleanly", tag.Error(err))
	}
	o.inflight.Wait()
	// A restart that won the race with Shutdown is stopped here.
	if err := o.sup.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Application did not stop cleanly", tag.Error(err))
	}
	o.stats.ClearChild()

	if err := aux.Stop(ctx); err != nil {
		logger.Warn(ctx, "Auxiliary server did not stop cleanly", tag.Error(err))
	}
	o.compiler.Stop()

	o.setState(StateStopped)
	close(o.done)
}

func (o *Orchestrator) notify(ev devserver.Event) {
	o.mu.Lock()
	n := o.notifier
	o.mu.Unlock()
	n.Notify(ev)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}
