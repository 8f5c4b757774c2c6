package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"feedbot/internal/app"
)

var (
	cfgPath string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "feedbot",
	Short: "Publish a curated feed on a daily schedule",
	Long: `feedbot walks a feed file item by item and publishes each one at the
configured times of day, keeping its progress so restarts resume where
they left off.

Example usage:
  feedbot run                       # Publish until interrupted
  feedbot status                    # Show progress and the next slots
  feedbot next -n 5                 # Preview the next five slot times
  feedbot snapshot --suffix backup  # Copy the progress record aside`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadEnv()
	}
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

// loadEnv reads the dotenv file; a missing default file is fine.
func loadEnv() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !rootCmd.PersistentFlags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// openApp wires the app from the config flag without starting it.
func openApp(opts ...app.Option) (*app.App, error) {
	a, err := app.New(cfgPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfgPath, err)
	}
	return a, nil
}
