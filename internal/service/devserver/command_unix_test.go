//go:build unix

package devserver

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/portutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/proctree"
)

func requireTools(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"sh", "sleep"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}
}

// readyEndpoint stands in for the port the external server would bind.
func readyEndpoint(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)
	return ts.Listener.Addr().(*net.TCPAddr).Port
}

func TestCommandServer_StartStop(t *testing.T) {
	requireTools(t)
	t.Parallel()

	dir := t.TempDir()
	port := readyEndpoint(t)
	srv := NewCommandServer(CommandOptions{
		Command:      `sh -c "echo $PORT > port.txt; exec sleep 30"`,
		Host:         "127.0.0.1",
		Port:         port,
		Dir:          dir,
		ReadyTimeout: 5 * time.Second,
	})

	require.NoError(t, srv.Start(t.Context()))
	pid := srv.handle.PID()
	assert.True(t, proctree.New().IsAlive(pid))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(dir, "port.txt"))
		return err == nil && strings.TrimSpace(string(data)) == strconv.Itoa(port)
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Stop(t.Context()))
	assert.False(t, proctree.New().IsAlive(pid))
	require.NoError(t, srv.Stop(t.Context()))
}

func TestCommandServer_ExitBeforeReady(t *testing.T) {
	requireTools(t)
	t.Parallel()

	port, err := portutil.AllocatePort("127.0.0.1")
	require.NoError(t, err)

	srv := NewCommandServer(CommandOptions{
		Command:      `sh -c "exit 4"`,
		Host:         "127.0.0.1",
		Port:         port,
		Dir:          t.TempDir(),
		ReadyTimeout: 5 * time.Second,
	})

	err = srv.Start(t.Context())
	require.ErrorIs(t, err, errServerExited)
	assert.Contains(t, err.Error(), "exit code 4")
	assert.Nil(t, srv.handle)
}

func TestCommandServer_NotReady(t *testing.T) {
	requireTools(t)
	t.Parallel()

	port, err := portutil.AllocatePort("127.0.0.1")
	require.NoError(t, err)

	srv := NewCommandServer(CommandOptions{
		Command:      "sleep 30",
		Host:         "127.0.0.1",
		Port:         port,
		Dir:          t.TempDir(),
		ReadyTimeout: 300 * time.Millisecond,
	})

	start := time.Now()
	err = srv.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Nil(t, srv.handle)
}

func TestCommandServer_MissingBinary(t *testing.T) {
	t.Parallel()

	srv := NewCommandServer(CommandOptions{Command: "devloop-no-such-server --port $PORT", Port: 1})
	err := srv.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devloop-no-such-server")
}
