package portutil

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFreePort(t *testing.T) {
	t.Parallel()

	t.Run("PreferredFree", func(t *testing.T) {
		t.Parallel()
		free, err := AllocatePort("127.0.0.1")
		require.NoError(t, err)

		port, err := AllocateFreePort("127.0.0.1", free)
		require.NoError(t, err)
		assert.Equal(t, free, port)
	})

	t.Run("PreferredBusy", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = listener.Close() }()
		busy := listener.Addr().(*net.TCPAddr).Port

		port, err := AllocateFreePort("127.0.0.1", busy)
		require.NoError(t, err)
		assert.NotEqual(t, busy, port)
		assert.Positive(t, port)
		assert.False(t, IsPortAvailable("127.0.0.1", busy))
	})

	t.Run("NoPreference", func(t *testing.T) {
		t.Parallel()
		port, err := AllocateFreePort("127.0.0.1", 0)
		require.NoError(t, err)
		assert.Positive(t, port)
		assert.True(t, IsPortAvailable("127.0.0.1", port))
	})
}

func TestTransformCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"vite --port $PORT", "vite --port 5173"},
		{"serve -l ${PORT} --host $HOST", "serve -l 5173 --host $HOST"},
		{"run $PORT $PORT", "run 5173 5173"},
		{"echo $PORTAL $PORT_X", "echo $PORTAL $PORT_X"},
		{"npm run dev", "npm run dev"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TransformCommand(tt.input, 5173))
			assert.Equal(t, tt.input != tt.want, HasPlaceholder(tt.input), strconv.Quote(tt.input))
		})
	}
}
