package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mark-chris/storefront-auth/internal/config"
	"github.com/mark-chris/storefront-auth/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the auth HTTP server.

Configuration is read from the file given by --config or $CONFIG_FILE and
from environment variables (AUTH_ACCESS_TOKEN_SECRET, DATABASE_URL, ...).
The server drains in-flight requests on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// loadConfig reads and validates the configuration and builds the logger
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log := logging.New(logging.Options{Level: cfg.Logs.Level, Format: cfg.Logs.Format})
	if err := cfg.Validate(log); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}
