package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wadze/cmd/wadze/dump"
	"github.com/wippyai/wadze/cmd/wadze/inspect"
	"github.com/wippyai/wadze/internal/logging"
)

var version = "<unknown>"

func configureCLI() *cobra.Command {
	var verbose bool

	rootCommand := &cobra.Command{
		Use:           "wadze",
		Short:         "wadze WebAssembly module decoder",
		Long:          "wadze - inspect the contents of WebAssembly binary modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logging.SetLogger(logger)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Logger().Sync() //nolint:errcheck
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCommand.AddCommand(dump.Command())
	rootCommand.AddCommand(inspect.Command())

	return rootCommand
}

func main() {
	if err := configureCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
