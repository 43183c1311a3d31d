package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/cmdutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
)

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func TestBuildLaunchSpec_EnvPrecedence(t *testing.T) {
	t.Setenv("DEVLOOP_TEST_FROM_OS", "os")
	t.Setenv("DEVLOOP_TEST_SHARED", "os")
	t.Setenv("APP_ENV", "os")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEVLOOP_TEST_SHARED=dotenv\nDEVLOOP_TEST_FILE=dotenv\nDEVLOOP_PORT=1\n"), 0o600))

	cfg := &config.Config{
		Core: config.Core{WorkDir: dir, EnvFile: envFile},
		App: config.App{
			Command: "./bin/app --name $DEVLOOP_TEST_SHARED",
			Env:     map[string]string{"DEVLOOP_TEST_SHARED": "config", "DEVLOOP_SERVER_URL": "ignored"},
			URLEnv:  "DEVLOOP_SERVER_URL",
			PortEnv: "DEVLOOP_PORT",
			ModeEnv: "APP_ENV",
			Mode:    "development",
		},
		Aux: config.Aux{Host: "localhost"},
	}

	spec, err := BuildLaunchSpec(cfg, 4321)
	require.NoError(t, err)

	env := envMap(spec.Env)
	assert.Equal(t, "os", env["DEVLOOP_TEST_FROM_OS"])
	assert.Equal(t, "dotenv", env["DEVLOOP_TEST_FILE"])
	assert.Equal(t, "config", env["DEVLOOP_TEST_SHARED"])
	assert.Equal(t, "http://localhost:4321", env["DEVLOOP_SERVER_URL"])
	assert.Equal(t, "4321", env["DEVLOOP_PORT"])
	assert.Equal(t, "development", env["APP_ENV"])

	assert.Equal(t, filepath.Join(dir, "bin", "app"), spec.Path)
	assert.Equal(t, []string{"--name", "config"}, spec.Args)
	assert.Equal(t, dir, spec.Dir)
}

func TestBuildLaunchSpec_Errors(t *testing.T) {
	t.Parallel()

	t.Run("MissingEnvFile", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{
			Core: config.Core{WorkDir: t.TempDir(), EnvFile: filepath.Join(t.TempDir(), "missing.env")},
			App:  config.App{Command: "app"},
		}
		_, err := BuildLaunchSpec(cfg, 1)
		assert.Error(t, err)
	})

	t.Run("EmptyCommand", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Core: config.Core{WorkDir: t.TempDir()}}
		_, err := BuildLaunchSpec(cfg, 1)
		assert.ErrorIs(t, err, cmdutil.ErrCommandIsEmpty)
	})
}

func TestResolveExecutable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "node", resolveExecutable("/work", "node"))
	assert.Equal(t, filepath.Join("/work", "bin", "app"), resolveExecutable("/work", "./bin/app"))
	assert.Equal(t, filepath.Join("/work", "bin", "app"), resolveExecutable("/work", "bin/app"))
	abs := filepath.Join(string(filepath.Separator), "usr", "bin", "app")
	assert.Equal(t, abs, resolveExecutable("/work", abs))
}

func TestAuxURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://localhost:3000", AuxURL("localhost", 3000))
	assert.Equal(t, "http://[::1]:3000", AuxURL("::1", 3000))
}
