package orchestrator

import (
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/cmdutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/supervisor"
)

// AuxURL is the address of the auxiliary server handed to the child.
func AuxURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// BuildLaunchSpec assembles the child's LaunchSpec for the session port.
//
// The environment is layered with later layers winning: the orchestrator's
// environment, the env file, app.env, then the url, port and mode variables.
// The env file is re-read on every call so edits apply on the next restart.
func BuildLaunchSpec(cfg *config.Config, port int) (supervisor.LaunchSpec, error) {
	scope := cmdutil.NewEnvScope(true)
	if err := scope.LoadEnvFile(cfg.Core.EnvFile); err != nil {
		return supervisor.LaunchSpec{}, err
	}
	scope.SetAll(cfg.App.Env, cmdutil.EnvSourceConfig)

	if cfg.App.URLEnv != "" {
		scope.Set(cfg.App.URLEnv, AuxURL(cfg.Aux.Host, port), cmdutil.EnvSourceDevloop)
	}
	if cfg.App.PortEnv != "" {
		scope.Set(cfg.App.PortEnv, strconv.Itoa(port), cmdutil.EnvSourceDevloop)
	}
	if cfg.App.ModeEnv != "" && cfg.App.Mode != "" {
		scope.Set(cfg.App.ModeEnv, cfg.App.Mode, cmdutil.EnvSourceDevloop)
	}

	name, args, err := cmdutil.SplitCommand(cfg.App.Command, scope.Lookup())
	if err != nil {
		return supervisor.LaunchSpec{}, err
	}

	return supervisor.LaunchSpec{
		Path: resolveExecutable(cfg.Core.WorkDir, name),
		Args: args,
		Env:  scope.ToSlice(),
		Dir:  cfg.Core.WorkDir,
	}, nil
}

// resolveExecutable makes path-like names absolute against dir and leaves
// bare names for PATH lookup.
func resolveExecutable(dir, name string) string {
	if filepath.IsAbs(name) || !strings.ContainsAny(name, `/\`) {
		return name
	}
	return filepath.Join(dir, name)
}
