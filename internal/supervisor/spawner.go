package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/cmdutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
)

// LaunchSpec describes one child process. It is passed by value and never
// mutated after construction.
type LaunchSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Handle is a started child process.
type Handle interface {
	PID() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed. A child killed by a signal
	// reports 128 plus the signal number.
	ExitCode() int
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, spec LaunchSpec) (Handle, error)
}

// outputWaitDelay bounds how long Wait keeps copying output after the child
// exits while a descendant still holds its stdout or stderr.
const outputWaitDelay = 500 * time.Millisecond

// ExecSpawner starts children with os/exec in their own process group.
type ExecSpawner struct {
	// LogOutput pipes stdout and stderr through the context logger instead
	// of inheriting the orchestrator's streams.
	LogOutput bool
}

var _ Spawner = (*ExecSpawner)(nil)

func (s *ExecSpawner) Spawn(ctx context.Context, spec LaunchSpec) (Handle, error) {
	// exec.CommandContext would SIGKILL the child when ctx ends; stopping is
	// done by the supervisor instead.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmdutil.SetupCommand(cmd)

	var writers []*lineWriter
	if s.LogOutput {
		stdout := newLineWriter(ctx, "stdout")
		stderr := newLineWriter(ctx, "stderr")
		cmd.Stdout, cmd.Stderr = stdout, stderr
		cmd.WaitDelay = outputWaitDelay
		writers = append(writers, stdout, stderr)
	} else {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{}), writers: writers}
	go h.wait(ctx)
	return h, nil
}

type execHandle struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	writers  []*lineWriter
}

func (h *execHandle) PID() int              { return h.cmd.Process.Pid }
func (h *execHandle) Done() <-chan struct{} { return h.done }
func (h *execHandle) ExitCode() int         { return h.exitCode }

func (h *execHandle) wait(ctx context.Context) {
	err := h.cmd.Wait()
	if err != nil && !errors.As(err, new(*exec.ExitError)) && !errors.Is(err, exec.ErrWaitDelay) {
		logger.Debug(ctx, "Wait for child failed", tag.PID(h.PID()), tag.Error(err))
	}
	h.exitCode = exitCode(h.cmd.ProcessState)
	for _, w := range h.writers {
		w.Flush()
	}
	close(h.done)
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// lineWriter logs every complete line written to it.
type lineWriter struct {
	ctx    context.Context
	stream string
	mu     sync.Mutex
	buf    bytes.Buffer
}

func newLineWriter(ctx context.Context, stream string) *lineWriter {
	return &lineWriter{ctx: ctx, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Write(line)
			return len(p), nil
		}
		w.emit(line[:len(line)-1])
	}
}

// Flush logs a trailing line without a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	logger.Info(w.ctx, string(line), tag.Stream(w.stream))
}
