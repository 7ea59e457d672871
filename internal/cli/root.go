// Package cli provides the snusd command surface.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"snusstats/internal/app"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "snusd",
	Short:         "Snus Stats companion daemon: consumption journal and reminders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Secrets (e.g. TELEGRAM_TOKEN) may live in a .env next to the
		// binary; absence is fine.
		_ = godotenv.Load()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func newApp() (*app.App, error) {
	return app.New(cfgPath)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./snusd.yaml", "path to config yaml")

	rootCmd.AddCommand(
		serveCmd,
		statusCmd,
		reminderCmd,
		entryCmd,
	)
}
