//go:build unix

package cmd

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		dir := writeProject(t, "build:\n  command: \"true\"\n")

		_, err := execute(t, Build(), "-q", "-w", dir)
		require.NoError(t, err)
	})

	t.Run("Failure", func(t *testing.T) {
		t.Parallel()
		dir := writeProject(t, "build:\n  command: \"sh -c 'echo main.go:1:1: boom >&2; exit 1'\"\n")

		_, err := execute(t, Build(), "-q", "-w", dir)
		require.Error(t, err)
		assert.Equal(t, 1, ExitCode(err))
	})
}
