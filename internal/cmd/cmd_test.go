package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
)

func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs(args)
	err := c.ExecuteContext(t.Context())
	return buf.String(), err
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName), []byte(content), 0o600))
	return dir
}

func validConfig() *config.Config {
	return &config.Config{
		Core:       config.Core{LogFormat: "text"},
		Build:      config.Build{Command: "go build ."},
		App:        config.App{Command: "./bin/app"},
		Aux:        config.Aux{Kind: config.AuxKindStatic, Host: "localhost", PreferredPort: 3000},
		Supervisor: config.Supervisor{Signal: "SIGTERM"},
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, Version())
	require.NoError(t, err)
	assert.Equal(t, config.Version+"\n", out)
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, "build:\n  command: make app\naux:\n  kind: none\n  preferredPort: 4000\n")

	out, err := execute(t, Config(), "-q", "-w", dir)
	require.NoError(t, err)

	var got struct {
		Core struct {
			WorkDir string `yaml:"workDir"`
		} `yaml:"core"`
		Build struct {
			Command string `yaml:"command"`
		} `yaml:"build"`
		Aux struct {
			Kind          string `yaml:"kind"`
			PreferredPort int    `yaml:"preferredPort"`
		} `yaml:"aux"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "make app", got.Build.Command)
	assert.Equal(t, "none", got.Aux.Kind)
	assert.Equal(t, 4000, got.Aux.PreferredPort)
	assert.Equal(t, dir, got.Core.WorkDir)
}

func TestConfigCommand_Invalid(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, "aux:\n  kind: bogus\n")

	out, err := execute(t, Config(), "-q", "-w", dir)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "Initialization error")
	assert.Contains(t, out, "bogus")
}

func TestApplyDevFlags(t *testing.T) {
	t.Parallel()

	t.Run("Overrides", func(t *testing.T) {
		t.Parallel()
		c := Dev()
		require.NoError(t, c.ParseFlags([]string{"--port", "5173", "--no-aux"}))

		cfg := validConfig()
		require.NoError(t, applyDevFlags(c, cfg))
		assert.Equal(t, 5173, cfg.Aux.PreferredPort)
		assert.Equal(t, config.AuxKindNone, cfg.Aux.Kind)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()
		c := Dev()
		require.NoError(t, c.ParseFlags(nil))

		cfg := validConfig()
		require.NoError(t, applyDevFlags(c, cfg))
		assert.Equal(t, 3000, cfg.Aux.PreferredPort)
		assert.Equal(t, config.AuxKindStatic, cfg.Aux.Kind)
	})

	t.Run("InvalidPort", func(t *testing.T) {
		t.Parallel()
		c := Dev()
		require.NoError(t, c.ParseFlags([]string{"-p", "abc"}))
		assert.ErrorContains(t, applyDevFlags(c, validConfig()), "invalid --port")
	})

	t.Run("OutOfRangePort", func(t *testing.T) {
		t.Parallel()
		c := Dev()
		require.NoError(t, c.ParseFlags([]string{"-p", "70000"}))
		assert.ErrorContains(t, applyDevFlags(c, validConfig()), "preferredPort")
	})
}

func TestPrintBanner(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	cfg := validConfig()
	var buf bytes.Buffer
	printBanner(&buf, cfg, 3001, "http://localhost:3001")

	out := buf.String()
	assert.Contains(t, out, "Port:   3001")
	assert.Contains(t, out, "http://localhost:3001 (static)")
	assert.Contains(t, out, "go build .")

	cfg.Aux.Kind = config.AuxKindNone
	buf.Reset()
	printBanner(&buf, cfg, 3001, "")
	assert.NotContains(t, buf.String(), "Aux:")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 3, ExitCode(&ExitError{Code: 3}))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2, Err: errors.New("setup")}))

	assert.Equal(t, "exit code 3", (&ExitError{Code: 3}).Error())
	assert.Equal(t, "setup", (&ExitError{Code: 2, Err: errors.New("setup")}).Error())
}
