package main

import (
	"github.com/KyleBrandon/lbis-server/config"
	"github.com/KyleBrandon/lbis-server/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var flags server.Flags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := server.InitializeServer(flags)
			if err != nil {
				return err
			}

			return sc.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flags.LogLevel, "log_level", config.DefaultLogLevel.String(), "The log level to start the server at")
	cmd.Flags().BoolVar(&flags.UseMockActuator, "use_mock_actuator", false, "Use an in-memory actuator instead of the configured device")

	return cmd
}
