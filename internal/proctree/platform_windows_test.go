//go:build windows

package proctree

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowsPlatform_Signal(t *testing.T) {
	t.Parallel()

	p := windowsPlatform{}

	t.Run("Running", func(t *testing.T) {
		t.Parallel()
		cmd := exec.Command("ping", "-n", "30", "127.0.0.1")
		require.NoError(t, cmd.Start())
		pid := cmd.Process.Pid
		require.True(t, p.Alive(pid))

		require.NoError(t, p.Signal(pid, syscall.SIGTERM))
		_ = cmd.Wait()
		assert.False(t, p.Alive(pid))
	})

	t.Run("AlreadyExited", func(t *testing.T) {
		t.Parallel()
		cmd := exec.Command("cmd", "/c", "exit 0")
		require.NoError(t, cmd.Start())
		defer func() { _ = cmd.Wait() }()
		pid := cmd.Process.Pid

		// The unreaped process object keeps the pid openable after exit.
		require.Eventually(t, func() bool { return !p.Alive(pid) }, 5*time.Second, 10*time.Millisecond)

		err := p.Signal(pid, syscall.SIGTERM)
		if err != nil {
			assert.True(t, errors.Is(err, ErrProcessGone), "unexpected error: %v", err)
		}
	})

	t.Run("UnknownPID", func(t *testing.T) {
		t.Parallel()
		// Windows pids are multiples of four.
		assert.ErrorIs(t, p.Signal(0x7ffffffc, syscall.SIGTERM), ErrProcessGone)
	})
}
