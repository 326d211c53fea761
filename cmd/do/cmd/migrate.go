package cmd

import (
	"fmt"

	"github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

func MigrateCmd(cfg *config.Config) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect database migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfg, func(conn *sqlx.DB) error {
				err := db.RunMigrations(conn.DB, cfg.DBDriver)
				if err != nil {
					return err
				}
				return printVersion(cmd, cfg, conn)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfg, func(conn *sqlx.DB) error {
				err := db.MigrateDown(conn.DB, cfg.DBDriver)
				if err != nil {
					return err
				}
				return printVersion(cmd, cfg, conn)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfg, func(conn *sqlx.DB) error {
				return printVersion(cmd, cfg, conn)
			})
		},
	})

	return migrateCmd
}

func withDB(cfg *config.Config, fn func(conn *sqlx.DB) error) error {
	conn, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func printVersion(cmd *cobra.Command, cfg *config.Config, conn *sqlx.DB) error {
	version, err := db.MigrationVersion(conn.DB, cfg.DBDriver)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version: %d\n", cfg.DBDriver, version)
	return nil
}
