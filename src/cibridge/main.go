package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/uber/cibridge/src/cibridge/app"
	"go.uber.org/fx"
)

const _version = "(to be added by the release build)"

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cibridge",
		Short:         "Language server bridging editors to the local code intelligence daemon",
		Version:       _version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Editors start the server without arguments.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newQueryCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept LSP connections and supervise the daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	fx.New(opts()).Run()
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
