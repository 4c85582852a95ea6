package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devlink-io/devlink/internal/config"
	"github.com/devlink-io/devlink/internal/logger"
)

const (
	appName    = "devlink"
	appVersion = "0.2.0"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Editor-side controller for remote script-execution devices",
	Long: `Devlink maintains command links to script-execution devices:
  - LAN sessions to devices reachable on the local network
  - ADB sessions through forwarded debug-bridge ports
  - A local HTTP endpoint for devices to trigger editor actions`,
	Version: appVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if flagConfig != "" {
			cfg, err = config.LoadConfigFile(flagConfig)
		} else {
			cfg, err = config.LoadGlobalConfig()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		return logger.Init(logger.Config{Level: cfg.LogLevel})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config.kdl")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
