package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func Config() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "config [flags]",
			Short: "Print the resolved configuration",
			Long: `Print the configuration devloop would run with, after merging defaults,
the config file and DEVLOOP_* environment variables.

Example:
  devloop config
  DEVLOOP_AUX_KIND=none devloop config
`,
			Args: cobra.NoArgs,
		},
		nil,
		runConfig,
	)
}

func runConfig(ctx *Context, _ []string) error {
	data, err := yaml.Marshal(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = ctx.Command.OutOrStdout().Write(data)
	return err
}
