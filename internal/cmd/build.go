package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/compiler"
)

func Build() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "build [flags]",
			Short: "Run the build command once",
			Long: `Run the configured build command once and report its diagnostics.

Exits with 0 when the build succeeds and 1 when it fails.

Example:
  devloop build
  devloop build -w ./services/api
`,
			Args: cobra.NoArgs,
		},
		nil,
		runBuild,
	)
}

func runBuild(ctx *Context, _ []string) error {
	cfg := ctx.Config

	var output io.Writer
	if !ctx.Quiet {
		output = os.Stderr
	}

	comp := compiler.NewCommandCompiler(compiler.Options{
		Command: cfg.Build.Command,
		Dir:     cfg.Core.WorkDir,
		Output:  output,
	})
	defer comp.Stop()

	err := comp.Start(ctx, compiler.ModeOneShot)

	var failure *compiler.Failure
	switch {
	case err == nil:
		if !ctx.Quiet {
			_, _ = color.New(color.FgHiGreen).Fprintln(os.Stdout, "Build succeeded")
		}
		return nil
	case errors.As(err, &failure):
		logger.Error(ctx, "Build failed", tag.Count(len(failure.Diagnostics)))
		for _, d := range failure.Diagnostics {
			logger.Write(ctx, d.String())
		}
		return &ExitError{Code: 1}
	default:
		return err
	}
}
