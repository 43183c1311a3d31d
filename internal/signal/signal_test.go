package signal

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  syscall.Signal
	}{
		{"SIGTERM", syscall.SIGTERM},
		{"term", syscall.SIGTERM},
		{" sigint ", syscall.SIGINT},
		{"9", syscall.SIGKILL},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "SIGNOPE", "999"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SIGTERM", Name(syscall.SIGTERM))
	assert.Equal(t, "signal 250", Name(syscall.Signal(250)))
	assert.True(t, IsTerminationSignal(syscall.SIGKILL))
	assert.False(t, IsTerminationSignal(syscall.Signal(250)))
}
