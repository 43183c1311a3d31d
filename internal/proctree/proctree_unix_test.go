//go:build unix

package proctree

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	cmd := exec.Command("sh", "-c", script)
	require.NoError(t, cmd.Start())

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})
	return cmd
}

func TestTree_Real(t *testing.T) {
	tree := New()
	ctx := context.Background()

	// sh -> sh -> sleep, plus a second sleep directly under the root.
	cmd := startShell(t, "sh -c 'sleep 30 & wait' & sleep 30 & wait")
	pid := cmd.Process.Pid

	var descendants []int
	require.Eventually(t, func() bool {
		var err error
		descendants, err = tree.DescendantsOf(ctx, pid)
		return err == nil && len(descendants) >= 3
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, tree.IsAlive(pid))
	assert.NotContains(t, descendants, pid)

	require.NoError(t, tree.Terminate(ctx, pid, syscall.SIGTERM))

	require.Eventually(t, func() bool {
		for _, d := range append(descendants, pid) {
			if tree.IsAlive(d) {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTree_RealSnapshot(t *testing.T) {
	records, err := New().Snapshot(context.Background())
	require.NoError(t, err)

	self := os.Getpid()
	found := false
	for _, r := range records {
		if r.PID == self {
			found = true
			assert.Equal(t, os.Getppid(), r.PPID)
		}
	}
	assert.True(t, found)
}

func TestUnixPlatform_SignalGone(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skip("true not available")
	}
	// The pid has been reaped by Run.
	assert.ErrorIs(t, unixPlatform{}.Signal(cmd.Process.Pid, syscall.SIGTERM), ErrProcessGone)
	assert.False(t, unixPlatform{}.Alive(cmd.Process.Pid))
}
