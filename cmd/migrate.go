package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mark-chris/storefront-auth/internal/database"
	"github.com/mark-chris/storefront-auth/internal/database/mongostore"
	"github.com/mark-chris/storefront-auth/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|redo|reset|version]",
	Short: "Apply or inspect schema migrations",
	Long: `Run a migration command against the configured database.

PostgreSQL runs the embedded goose migrations. MongoDB has no schema, so
"up" creates the collection indexes and every other command is rejected.`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: []string{"up", "down", "status", "redo", "reset", "version"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	command := args[0]
	switch cfg.Database.Driver {
	case database.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := postgres.Migrate(ctx, db, command, args[1:]...); err != nil {
			return err
		}

	case database.DriverMongo:
		if command != "up" {
			return fmt.Errorf("migrate %s is not supported for %s", command, cfg.Database.Driver)
		}
		client, err := mongostore.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		name := cfg.Database.Name
		if name == "" {
			name = database.DefaultMongoDatabase
		}
		if err := mongostore.EnsureIndexes(ctx, client.Database(name)); err != nil {
			return err
		}

	default:
		return fmt.Errorf("driver %q has nothing to migrate", cfg.Database.Driver)
	}

	log.WithFields(logrus.Fields{"command": command, "driver": cfg.Database.Driver}).Info("migration complete")
	return nil
}
