package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Posologia-Edu/pbl-virtual-sub001/config"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/bootstrap"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/postgres"
)

// =============================================================================
// SCHEMA COMMANDS
// =============================================================================

var errNoDatabase = errors.New("schema commands need BADGES_STORE=postgres")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				applied, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %03d\n", v)
				}
				return nil
			})
		},
	}
}

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				version, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %03d\n", version)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, mig := range migrations {
					applied := "pending"
					if mig.IsApplied {
						applied = mig.AppliedAt.UTC().Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()
			})
		},
	}
}

// withMigrator connects to the configured database and runs fn.
func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *postgres.Migrator) error) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	if e.cfg.Badges.StoreDriver != config.StoreDriverPostgres {
		return errNoDatabase
	}

	ctx := cmd.Context()
	conn, err := postgres.NewConnection(ctx, bootstrap.PostgresConfig(e.cfg.Database), e.log)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	return fn(ctx, postgres.NewMigrator(conn))
}
