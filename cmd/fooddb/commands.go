package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/fooddb/internal/persistence/sqlite"
	"github.com/example/fooddb/internal/persistence/sqlite/migration"
)

const defaultSchemaTable = "food_description"

func (c *cli) openStorage(logger *slog.Logger) (*sqlite.Storage, error) {
	dbConfig := migration.DefaultSQLiteConfig(c.cfg.SQLiteDSN)
	dbConfig.BusyTimeout = c.cfg.BusyTimeout

	opts := sqlite.DefaultOptions()
	opts.Migration.MigrationDir = c.cfg.MigrationDir
	opts.Migration.TimeoutPerFile = c.cfg.MigrationTimeout
	opts.Migration.VerifyChecksum = c.cfg.VerifyChecksum
	opts.Logger = logger

	return sqlite.Open(dbConfig, opts)
}

// withStorage opens the database for the duration of fn.
func (c *cli) withStorage(fn func(ctx context.Context, cmd *cobra.Command, args []string, storage *sqlite.Storage) error) func(*cobra.Command, []string) error {
	return c.run(func(ctx context.Context, cmd *cobra.Command, args []string, logger *slog.Logger) error {
		storage, err := c.openStorage(logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := storage.Close(); cerr != nil {
				logger.Error("failed to close storage", "error", cerr)
			}
		}()
		return fn(ctx, cmd, args, storage)
	})
}

func (c *cli) migrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply and reverse schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, _ []string, storage *sqlite.Storage) error {
			if err := storage.Migrate(ctx); err != nil {
				return err
			}
			return printVersion(ctx, cmd, storage.Migrations())
		}),
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Reverse the most recently applied migrations",
		Args:  cobra.NoArgs,
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, _ []string, storage *sqlite.Storage) error {
			err := storage.Migrations().Rollback(ctx, steps)
			if errors.Is(err, migration.ErrNothingToRollback) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			if err != nil {
				return err
			}
			return printVersion(ctx, cmd, storage.Migrations())
		}),
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to reverse")

	toCmd := &cobra.Command{
		Use:   "to <version>",
		Short: "Apply or reverse migrations until version is current (0 reverses everything)",
		Args:  cobra.ExactArgs(1),
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, args []string, storage *sqlite.Storage) error {
			if err := storage.Migrations().MigrateTo(ctx, args[0]); err != nil {
				return err
			}
			return printVersion(ctx, cmd, storage.Migrations())
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, _ []string, storage *sqlite.Storage) error {
			if err := storage.Migrations().LogPendingMigrations(ctx); err != nil {
				return err
			}
			status, err := storage.Migrations().GetMigrationStatus(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "current version: %s\n", versionOrNone(status.CurrentVersion))
			fmt.Fprintf(out, "applied: %d\n", len(status.AppliedMigrations))
			fmt.Fprintf(out, "pending: %d\n", status.PendingCount)
			for _, pending := range status.PendingMigrations {
				reversible := "irreversible"
				if pending.Reversible() {
					reversible = "reversible"
				}
				fmt.Fprintf(out, "  %s %s (%s)\n", pending.Version, pending.Description, reversible)
			}
			return nil
		}),
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List applied migrations with timings",
		Args:  cobra.NoArgs,
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, _ []string, storage *sqlite.Storage) error {
			applied, err := storage.Migrations().ListAppliedMigrations(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tDESCRIPTION\tAPPLIED AT\tDURATION\tRUN")
			for _, m := range applied {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Version,
					m.Description,
					m.AppliedAt.UTC().Format(time.RFC3339),
					m.ExecutionTime,
					m.RunID,
				)
			}
			return w.Flush()
		}),
	}

	migrateCmd.AddCommand(upCmd, downCmd, toCmd, statusCmd, historyCmd)
	return migrateCmd
}

func (c *cli) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [table]",
		Short: "Describe the columns of a table (default food_description)",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withStorage(func(ctx context.Context, cmd *cobra.Command, args []string, storage *sqlite.Storage) error {
			table := defaultSchemaTable
			if len(args) == 1 {
				table = args[0]
			}

			exists, err := storage.Inspector().TableExists(ctx, table)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("table %q does not exist", table)
			}

			columns, err := storage.Inspector().TableColumns(ctx, table)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLUMN\tTYPE\tNULLABLE\tPRIMARY KEY")
			for _, col := range columns {
				nullable := "NO"
				if col.Nullable() {
					nullable = "YES"
				}
				pk := ""
				if col.PrimaryKey > 0 {
					pk = fmt.Sprintf("%d", col.PrimaryKey)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", col.Name, col.Type, nullable, pk)
			}
			return w.Flush()
		}),
	}
}

func printVersion(ctx context.Context, cmd *cobra.Command, manager migration.MigrationManager) error {
	versions, err := manager.GetAppliedVersions(ctx)
	if err != nil {
		return err
	}
	current := ""
	if len(versions) > 0 {
		current = versions[len(versions)-1]
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %s\n", versionOrNone(current))
	return nil
}

func versionOrNone(version string) string {
	if version == "" {
		return "none"
	}
	return version
}
