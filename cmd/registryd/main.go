// Command registryd receives storefront order and subscription webhooks and
// keeps the software license registry in step with them.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "registryd",
		Short:        "Storefront webhook receiver for the software registry",
		Long:         `registryd authenticates WooCommerce order and subscription webhooks and turns them into license registry actions.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml, ./configs/config.yaml, /etc/registryd/config.yaml)")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
	)
	return rootCmd
}
