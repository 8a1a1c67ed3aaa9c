package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "emitterkit",
		Short: "Runs data emitters and records what they emit",
		Long: `emitterkit hosts emitters (data sources such as HTTP endpoints, tailed
files, syslog listeners and the systemd journal) and fans every data and
status event out to the configured chroniclers (stdout, file, elasticsearch,
loki, sqlite, nats).

Components are built by type through a factory registry. Their state can be
serialized, optionally sealed with AES, and recreated on the next start.

Hot-reload: When a config file is specified, changes are automatically applied
without requiring a restart.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./emitterkit.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewSealCmd(&cfgFile),
		NewInspectCmd(&cfgFile),
		NewTypesCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}
