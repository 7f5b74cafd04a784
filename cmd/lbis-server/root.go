package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "lbis-server",
		Short:        "Pump session server",
		Long:         "lbis-server runs the session, bank and latch accounting for a remotely actuated pump and exposes the chat command surface over HTTP.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStateCmd(),
		newExecCmd(),
	)

	return rootCmd
}
