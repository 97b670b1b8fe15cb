package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/goregistry/internal/config"
	"github.com/mihaimyh/goregistry/storage/postgres"
)

var steps int

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "PostgreSQL schema migrations",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL schema migrations.`,
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate) error {
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to rollback: %w", err)
			}
			cmd.Printf("rolled back %d migration(s)\n", steps)
			return nil
		}),
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate) error {
				if err := m.Up(); err != nil {
					if errors.Is(err, migrate.ErrNoChange) {
						cmd.Println("no pending migrations")
						return nil
					}
					return fmt.Errorf("failed to migrate: %w", err)
				}
				cmd.Println("migrations applied")
				return nil
			}),
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to read version: %w", err)
				}
				cmd.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}

func withMigrator(fn func(cmd *cobra.Command, m *migrate.Migrate) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		m, err := postgres.NewMigrator(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(cmd, m)
	}
}
