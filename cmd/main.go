package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmd"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
)

var rootCmd = &cobra.Command{
	Use:   config.AppSlug,
	Short: "devloop keeps a compiled application running while you edit it",
	Long: `devloop keeps a compiled application running while you edit it.

It runs your build command whenever sources change and, after each
successful build, restarts the application with its whole process tree,
next to an auxiliary server on a dynamically chosen port.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	// Command errors are already logged; only cobra's own (unknown
	// command, bad flag) are printed here.
	var exitErr *cmd.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cmd.ExitCode(err))
}

func init() {
	rootCmd.AddCommand(cmd.Dev())
	rootCmd.AddCommand(cmd.Build())
	rootCmd.AddCommand(cmd.Config())
	rootCmd.AddCommand(cmd.Version())

	config.Version = version
}

var version = "0.0.0"
