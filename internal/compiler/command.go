package compiler

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/cmdutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
)

const defaultDebounce = 200 * time.Millisecond

// Options configures a CommandCompiler.
type Options struct {
	// Command is the build command line, e.g. "go build -o ./bin/app .".
	Command string
	// Dir is the working directory of the build and the root that watch
	// patterns are matched against.
	Dir string
	// Env is the build environment; nil inherits the orchestrator's.
	Env []string
	// Watch lists directories watched recursively in ModeWatch.
	Watch []string
	// Include and Exclude are doublestar patterns relative to Dir.
	Include []string
	Exclude []string
	// Debounce is the quiet period after the last change before recompiling.
	Debounce time.Duration
	// Output receives the raw build output when set.
	Output io.Writer
}

var _ Compiler = (*CommandCompiler)(nil)

// CommandCompiler drives an external build command.
type CommandCompiler struct {
	opts    Options
	emitter *emitter

	started atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	watcher *watcher
	wg      sync.WaitGroup
}

// NewCommandCompiler creates a compiler for opts. Nothing runs until Start.
func NewCommandCompiler(opts Options) *CommandCompiler {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if len(opts.Watch) == 0 {
		opts.Watch = []string{"."}
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &CommandCompiler{
		opts:    opts,
		emitter: newEmitter(),
	}
}

func (c *CommandCompiler) On(kind EventKind, h Handler) {
	c.emitter.on(kind, h)
}

func (c *CommandCompiler) Start(ctx context.Context, mode Mode) error {
	if c.stopped.Load() {
		return ErrStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if _, _, err := cmdutil.SplitCommand(c.opts.Command, c.lookup()); err != nil {
		return err
	}

	if mode == ModeOneShot {
		ev := c.compile(ctx)
		c.emitter.flush()
		if ev.Kind == EventFailed {
			return &Failure{Diagnostics: ev.Diagnostics}
		}
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w, err := newWatcher(loopCtx, c.opts.Dir, c.opts.Watch, c.opts.Include, c.opts.Exclude, c.opts.Debounce)
	if err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		cancel()
		_ = w.close()
		return ErrStopped
	}
	c.cancel = cancel
	c.watcher = w
	c.wg.Add(1)
	c.mu.Unlock()

	go c.loop(loopCtx, w)
	return nil
}

func (c *CommandCompiler) Stop() {
	c.mu.Lock()
	if !c.stopped.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	cancel, w := c.cancel, c.watcher
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if w != nil {
		_ = w.close()
	}
	c.emitter.close()
}

func (c *CommandCompiler) loop(ctx context.Context, w *watcher) {
	defer c.wg.Done()

	c.compile(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
			if ctx.Err() != nil {
				return
			}
			c.compile(ctx)
		}
	}
}

// compile runs the build once and emits Started followed by the result.
func (c *CommandCompiler) compile(ctx context.Context) Event {
	c.emitter.emit(Event{Kind: EventStarted})
	logger.Info(ctx, "Compiling", tag.Command(c.opts.Command))

	start := time.Now()
	output, err := c.run(ctx)
	ev := Event{Duration: time.Since(start)}

	switch {
	case ctx.Err() != nil:
		ev.Kind = EventFailed
		ev.Diagnostics = []Diagnostic{{Message: "compilation cancelled"}}
		// Stop is in progress; handlers must not see this result.
		return ev
	case err == nil:
		ev.Kind = EventSucceeded
		logger.Info(ctx, "Compilation succeeded", tag.Duration(ev.Duration))
	default:
		ev.Kind = EventFailed
		ev.Diagnostics = ParseDiagnostics(output)
		if len(ev.Diagnostics) == 0 {
			ev.Diagnostics = []Diagnostic{{Message: err.Error()}}
		}
		logger.Warn(ctx, "Compilation failed",
			tag.Duration(ev.Duration),
			tag.Count(len(ev.Diagnostics)),
			tag.Error(err),
		)
	}

	c.emitter.emit(ev)
	return ev
}

func (c *CommandCompiler) run(ctx context.Context) (string, error) {
	name, args, err := cmdutil.SplitCommand(c.opts.Command, c.lookup())
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.opts.Dir
	cmd.Env = c.opts.Env
	cmdutil.SetupCommand(cmd)
	cmd.Cancel = func() error {
		_ = cmdutil.KillProcessGroup(cmd.Process.Pid, syscall.SIGKILL)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = time.Second

	var buf bytes.Buffer
	var out io.Writer = &buf
	if c.opts.Output != nil {
		out = io.MultiWriter(&buf, c.opts.Output)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err = cmd.Run()
	return buf.String(), err
}

// lookup expands variables in the build command from the build environment.
func (c *CommandCompiler) lookup() func(string) string {
	if c.opts.Env == nil {
		return nil
	}
	vars := make(map[string]string, len(c.opts.Env))
	for _, kv := range c.opts.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return func(key string) string { return vars[key] }
}
