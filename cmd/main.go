package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mark-chris/storefront-auth/internal/config"
)

const version = "0.1.0"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:          "storefront-auth",
	Short:        "Storefront account and session service",
	Long:         "Signup, login, token refresh, password reset and email verification for the storefront.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides logs.level)")
	_ = v.BindPFlag("logs.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
