// Command relaybot runs the owner/user relay bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relaybot/internal/config"
)

var (
	version    = "dev"
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "relaybot",
		Short:         "Telegram bot that relays user messages to its owner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotenv(envFile)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config (.json/.yaml); env vars alone also work")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config (skipped if missing)")

	root.AddCommand(serveCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(webhookCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relaybot:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.NewManager(configPath).Load()
}
