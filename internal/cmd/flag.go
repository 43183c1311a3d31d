package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	isBool                               bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is ./devloop.yaml, then $XDG_CONFIG_HOME/devloop/config.yaml)",
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress log output",
		isBool:    true,
	}
	workDirFlag = commandLineFlag{
		name:      "work-dir",
		shorthand: "w",
		usage:     "project directory (default is the current directory)",
	}
	portFlag = commandLineFlag{
		name:      "port",
		shorthand: "p",
		usage:     "preferred port for the auxiliary server",
	}
	noAuxFlag = commandLineFlag{
		name:   "no-aux",
		usage:  "do not start the auxiliary server",
		isBool: true,
	}
)

// baseFlags are registered on every command.
var baseFlags = []commandLineFlag{configFlag, quietFlag, workDirFlag}

func initFlags(cmd *cobra.Command, flags ...commandLineFlag) {
	for _, flag := range append(append([]commandLineFlag{}, baseFlags...), flags...) {
		if flag.isBool {
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
			continue
		}
		cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
	}
}

// intFlag parses a string flag as an int. ok is false when the flag was not
// set on the command line.
func intFlag(cmd *cobra.Command, name string) (value int, ok bool, err error) {
	if !cmd.Flags().Changed(name) {
		return 0, false, nil
	}
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return n, true, nil
}
