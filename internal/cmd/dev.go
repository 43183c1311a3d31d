package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/compiler"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/orchestrator"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/proctree"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/supervisor"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/telemetry"
)

func Dev() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "dev [flags]",
			Short: "Build, run and restart the application on every change",
			Long: `Start a development session.

The build command runs once immediately and again whenever a watched file
changes. After every successful build the application is restarted: the
previous process and all of its descendants are terminated before the new
one starts. An auxiliary server (static files with live reload, or an
external dev server) runs on a free port for the whole session; its URL and
port are passed to the application through environment variables.

The session ends on SIGINT or SIGTERM, or when the application exits on its
own, in which case devloop exits with the application's exit code.

Example:
  devloop dev
  devloop dev --port 5173
  devloop dev --no-aux -c ./devloop.yaml
`,
			Args: cobra.NoArgs,
		},
		[]commandLineFlag{portFlag, noAuxFlag},
		runDev,
	)
}

func runDev(ctx *Context, _ []string) error {
	cfg := ctx.Config
	if err := applyDevFlags(ctx.Command, cfg); err != nil {
		return &ExitError{Code: orchestrator.ExitCodeSetupFailure, Err: err}
	}

	var buildOutput io.Writer
	if !ctx.Quiet {
		buildOutput = os.Stderr
	}

	stats := telemetry.NewStats()
	comp := compiler.NewCommandCompiler(compiler.Options{
		Command:  cfg.Build.Command,
		Dir:      cfg.Core.WorkDir,
		Watch:    cfg.Build.Watch,
		Include:  cfg.Build.Include,
		Exclude:  cfg.Build.Exclude,
		Debounce: cfg.Build.Debounce,
		Output:   buildOutput,
	})
	sup := supervisor.New(
		supervisor.Config{
			Signal:       cfg.Supervisor.StopSignal(),
			StopTimeout:  cfg.Supervisor.StopTimeout,
			PollInterval: cfg.Supervisor.PollInterval,
		},
		supervisor.WithSpawner(&supervisor.ExecSpawner{LogOutput: cfg.App.LogOutput}),
	)

	// Runs on every return and while unwinding a panic.
	defer killChild(ctx, sup)

	orch := orchestrator.New(cfg, comp, sup,
		orchestrator.WithStats(stats),
		orchestrator.WithOnRunning(func(port int, auxURL string) {
			if !ctx.Quiet {
				printBanner(os.Stdout, cfg, port, auxURL)
			}
		}),
	)

	code, err := orch.Run(ctx)
	if err != nil {
		return &ExitError{Code: code, Err: err}
	}
	if code != orchestrator.ExitCodeOK {
		return &ExitError{Code: code}
	}
	return nil
}

func applyDevFlags(cmd *cobra.Command, cfg *config.Config) error {
	port, ok, err := intFlag(cmd, portFlag.name)
	if err != nil {
		return err
	}
	if ok {
		cfg.Aux.PreferredPort = port
	}
	if noAux, _ := cmd.Flags().GetBool(noAuxFlag.name); noAux {
		cfg.Aux.Kind = config.AuxKindNone
	}
	return cfg.Validate()
}

// killChild is the last-resort cleanup for the current child tree.
func killChild(ctx context.Context, sup *supervisor.Supervisor) {
	pid := sup.PID()
	if pid <= 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := proctree.New().Kill(ctx, pid); err != nil {
		logger.Warn(ctx, "Failed to kill application on exit", tag.PID(pid), tag.Error(err))
	}
}

func printBanner(w io.Writer, cfg *config.Config, port int, auxURL string) {
	green := color.New(color.FgHiGreen, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	_, _ = fmt.Fprintf(w, "\n  %s %s\n\n", color.New(color.Bold).Sprint(config.AppName), faint(config.Version))
	_, _ = fmt.Fprintf(w, "  Port:   %s\n", green(port))
	if cfg.Aux.Kind != config.AuxKindNone {
		_, _ = fmt.Fprintf(w, "  Aux:    %s %s\n", auxURL, faint("("+string(cfg.Aux.Kind)+")"))
	}
	_, _ = fmt.Fprintf(w, "  Build:  %s\n", cfg.Build.Command)
	_, _ = fmt.Fprintf(w, "  App:    %s\n\n", cfg.App.Command)
}
