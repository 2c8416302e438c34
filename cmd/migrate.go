package cmd

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run db migration files under db/migrations directory",
	}
	migrateRollback bool
	migrateStatus   bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.Flags().BoolVarP(&migrateStatus, "status", "s", false, "to print the applied state of every migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "db/migrations", "sql migrations directory")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer db.Close()
	goose.SetTableName("schema_migrations")

	command := "up"
	switch {
	case migrateStatus:
		command = "status"
	case migrateRollback:
		command = "down"
	}
	if err := goose.RunContext(ctx, command, db, migrateDir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
