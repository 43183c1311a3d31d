//go:build unix

package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// eventLog records delivered events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) attach(c Compiler) {
	for _, k := range []EventKind{EventStarted, EventSucceeded, EventFailed} {
		c.On(k, func(ev Event) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, ev)
		})
	}
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestCommandCompiler_OneShot(t *testing.T) {
	requireShell(t)
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		c := NewCommandCompiler(Options{
			Command: `sh -c "echo building"`,
			Dir:     t.TempDir(),
			Output:  &out,
		})
		defer c.Stop()
		var log eventLog
		log.attach(c)

		require.NoError(t, c.Start(t.Context(), ModeOneShot))
		assert.Equal(t, []EventKind{EventStarted, EventSucceeded}, log.kinds())
		assert.Equal(t, "building\n", out.String())
	})

	t.Run("FailureCarriesDiagnostics", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{
			Command: `sh -c "echo 'main.go:3:5: undefined: foo' >&2; exit 1"`,
			Dir:     t.TempDir(),
		})
		defer c.Stop()
		var log eventLog
		log.attach(c)

		err := c.Start(t.Context(), ModeOneShot)
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, []Diagnostic{{File: "main.go", Line: 3, Column: 5, Message: "undefined: foo"}}, failure.Diagnostics)
		assert.Equal(t, []EventKind{EventStarted, EventFailed}, log.kinds())
	})

	t.Run("SilentFailure", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "false", Dir: t.TempDir()})
		defer c.Stop()

		var failure *Failure
		require.ErrorAs(t, c.Start(t.Context(), ModeOneShot), &failure)
		require.Len(t, failure.Diagnostics, 1)
		assert.Contains(t, failure.Diagnostics[0].Message, "exit status 1")
	})

	t.Run("MissingExecutable", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "devloop-no-such-compiler", Dir: t.TempDir()})
		defer c.Stop()

		var failure *Failure
		require.ErrorAs(t, c.Start(t.Context(), ModeOneShot), &failure)
		require.Len(t, failure.Diagnostics, 1)
		assert.Contains(t, failure.Diagnostics[0].Message, "devloop-no-such-compiler")
	})

	t.Run("EmptyCommand", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "  "})
		defer c.Stop()
		assert.Error(t, c.Start(t.Context(), ModeOneShot))
	})
}

func TestCommandCompiler_Lifecycle(t *testing.T) {
	requireShell(t)
	t.Parallel()

	t.Run("AlreadyStarted", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "true", Dir: t.TempDir()})
		defer c.Stop()

		require.NoError(t, c.Start(t.Context(), ModeOneShot))
		assert.ErrorIs(t, c.Start(t.Context(), ModeOneShot), ErrAlreadyStarted)
	})

	t.Run("StartAfterStop", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "true", Dir: t.TempDir()})
		c.Stop()
		c.Stop()
		assert.ErrorIs(t, c.Start(t.Context(), ModeWatch), ErrStopped)
	})

	t.Run("StopCancelsRunningBuild", func(t *testing.T) {
		t.Parallel()

		c := NewCommandCompiler(Options{Command: "sleep 30", Dir: t.TempDir()})
		var log eventLog
		log.attach(c)

		require.NoError(t, c.Start(t.Context(), ModeWatch))
		require.Eventually(t, func() bool { return log.count(EventStarted) == 1 }, 5*time.Second, 10*time.Millisecond)

		start := time.Now()
		c.Stop()
		assert.Less(t, time.Since(start), 10*time.Second)
		assert.Zero(t, log.count(EventSucceeded)+log.count(EventFailed))
	})
}

func TestCommandCompiler_Watch(t *testing.T) {
	requireShell(t)
	t.Parallel()

	newWatchCompiler := func(t *testing.T) (*CommandCompiler, *eventLog, string) {
		t.Helper()
		dir := t.TempDir()
		c := NewCommandCompiler(Options{
			Command:  "true",
			Dir:      dir,
			Include:  []string{"**/*.go"},
			Exclude:  []string{"bin/**"},
			Debounce: 50 * time.Millisecond,
		})
		log := &eventLog{}
		log.attach(c)
		require.NoError(t, c.Start(t.Context(), ModeWatch))
		t.Cleanup(c.Stop)
		return c, log, dir
	}

	succeeded := func(log *eventLog, n int) func() bool {
		return func() bool { return log.count(EventSucceeded) == n }
	}

	t.Run("InitialCompileAndRecompile", func(t *testing.T) {
		t.Parallel()
		_, log, dir := newWatchCompiler(t)

		require.Eventually(t, succeeded(log, 1), 5*time.Second, 10*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600))
		require.Eventually(t, succeeded(log, 2), 5*time.Second, 10*time.Millisecond)
	})

	t.Run("BurstIsDebounced", func(t *testing.T) {
		t.Parallel()
		_, log, dir := newWatchCompiler(t)
		require.Eventually(t, succeeded(log, 1), 5*time.Second, 10*time.Millisecond)

		for i := range 5 {
			name := filepath.Join(dir, "main.go")
			require.NoError(t, os.WriteFile(name, []byte{byte('a' + i)}, 0o600))
			time.Sleep(5 * time.Millisecond)
		}

		require.Eventually(t, succeeded(log, 2), 5*time.Second, 10*time.Millisecond)
		assert.Never(t, func() bool { return log.count(EventSucceeded) > 2 }, 300*time.Millisecond, 20*time.Millisecond)
	})

	t.Run("IgnoresFilteredFiles", func(t *testing.T) {
		t.Parallel()
		_, log, dir := newWatchCompiler(t)
		require.Eventually(t, succeeded(log, 1), 5*time.Second, 10*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "gen.go"), []byte("x"), 0o600))

		assert.Never(t, func() bool { return log.count(EventSucceeded) > 1 }, 300*time.Millisecond, 20*time.Millisecond)
	})

	t.Run("WatchesNewDirectories", func(t *testing.T) {
		t.Parallel()
		_, log, dir := newWatchCompiler(t)
		require.Eventually(t, succeeded(log, 1), 5*time.Second, 10*time.Millisecond)

		sub := filepath.Join(dir, "internal", "app")
		require.NoError(t, os.MkdirAll(sub, 0o750))
		require.Eventually(t, succeeded(log, 2), 5*time.Second, 10*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(sub, "app.go"), []byte("package app\n"), 0o600))
		require.Eventually(t, succeeded(log, 3), 5*time.Second, 10*time.Millisecond)
	})

	t.Run("NoEventsAfterStop", func(t *testing.T) {
		t.Parallel()
		c, log, dir := newWatchCompiler(t)
		require.Eventually(t, succeeded(log, 1), 5*time.Second, 10*time.Millisecond)

		c.Stop()
		before := len(log.kinds())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600))
		assert.Never(t, func() bool { return len(log.kinds()) != before }, 300*time.Millisecond, 20*time.Millisecond)
	})

	t.Run("ContextCancelEndsLoop", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		c := NewCommandCompiler(Options{Command: "true", Dir: t.TempDir(), Debounce: 10 * time.Millisecond})
		defer c.Stop()
		require.NoError(t, c.Start(ctx, ModeWatch))
		cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("watch loop did not exit after cancel")
		}
	})
}
