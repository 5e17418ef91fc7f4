package main

import (
	"github.com/spf13/cobra"

	"github.com/Strob0t/Courier/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "courier",
		Short: "Notification delivery connector",
		Long: `courier consumes delivery requests from NATS, delivers them to one
outbound channel and reports every outcome back to the engine.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config file (default $COURIER_CONFIG or "+config.DefaultConfigFile+")")

	root.AddCommand(newServeCmd(), newDeliverCmd(), newChannelsCmd())
	return root
}

// configPath returns the --config flag value or the default location.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.Path()
}
