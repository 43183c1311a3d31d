package config

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/signal"
)

// Config holds the resolved configuration. Paths are absolute.
type Config struct {
	Core       Core       `yaml:"core"`
	Build      Build      `yaml:"build"`
	App        App        `yaml:"app"`
	Aux        Aux        `yaml:"aux"`
	Supervisor Supervisor `yaml:"supervisor"`
	Warnings   []string   `yaml:"warnings,omitempty"`
}

// Core holds settings shared by every command.
type Core struct {
	Debug          bool   `yaml:"debug"`
	LogFormat      string `yaml:"logFormat"`
	WorkDir        string `yaml:"workDir"`
	EnvFile        string `yaml:"envFile,omitempty"`
	ConfigFileUsed string `yaml:"configFile,omitempty"`
}

// Build configures the compiler.
type Build struct {
	Command  string        `yaml:"command"`
	Watch    []string      `yaml:"watch"`
	Include  []string      `yaml:"include"`
	Exclude  []string      `yaml:"exclude"`
	Debounce time.Duration `yaml:"debounce"`
}

// App configures the supervised child.
type App struct {
	Command   string            `yaml:"command"`
	Env       map[string]string `yaml:"env,omitempty"`
	URLEnv    string            `yaml:"urlEnv"`
	PortEnv   string            `yaml:"portEnv"`
	ModeEnv   string            `yaml:"modeEnv"`
	Mode      string            `yaml:"mode"`
	LogOutput bool              `yaml:"logOutput"`
}

// AuxKind selects the auxiliary server implementation.
type AuxKind string

const (
	AuxKindStatic  AuxKind = "static"
	AuxKindCommand AuxKind = "command"
	AuxKindNone    AuxKind = "none"
)

// Aux configures the auxiliary server.
type Aux struct {
	Kind          AuxKind       `yaml:"kind"`
	Host          string        `yaml:"host"`
	PreferredPort int           `yaml:"preferredPort"`
	Root          string        `yaml:"root"`
	SPA           bool          `yaml:"spa"`
	Command       string        `yaml:"command,omitempty"`
	ReadyPath     string        `yaml:"readyPath"`
	ReadyTimeout  time.Duration `yaml:"readyTimeout"`
}

// Supervisor configures how children are stopped.
type Supervisor struct {
	Signal       string        `yaml:"signal"`
	StopTimeout  time.Duration `yaml:"stopTimeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// StopSignal resolves Signal, falling back to SIGTERM.
func (s Supervisor) StopSignal() syscall.Signal {
	sig, err := signal.Parse(s.Signal)
	if err != nil {
		return syscall.SIGTERM
	}
	return sig
}

// Validate checks the settings the orchestrator cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Build.Command) == "" {
		errs = append(errs, errors.New("build.command must not be empty"))
	}
	if strings.TrimSpace(c.App.Command) == "" {
		errs = append(errs, errors.New("app.command must not be empty"))
	}
	if c.Core.LogFormat != "text" && c.Core.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid logFormat %q: must be text or json", c.Core.LogFormat))
	}

	switch c.Aux.Kind {
	case AuxKindStatic, AuxKindNone:
	case AuxKindCommand:
		if strings.TrimSpace(c.Aux.Command) == "" {
			errs = append(errs, errors.New("aux.command is required when aux.kind is command"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid aux.kind %q: must be static, command or none", c.Aux.Kind))
	}
	if c.Aux.PreferredPort < 0 || c.Aux.PreferredPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid aux.preferredPort %d", c.Aux.PreferredPort))
	}

	if sig, err := signal.Parse(c.Supervisor.Signal); err != nil {
		errs = append(errs, fmt.Errorf("invalid supervisor.signal: %w", err))
	} else if !signal.IsTerminationSignal(sig) {
		errs = append(errs, fmt.Errorf("invalid supervisor.signal %s: it does not terminate the process", signal.Name(sig)))
	}

	return errors.Join(errs...)
}
