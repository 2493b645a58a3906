package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/fooddb/internal/config"
	"github.com/example/fooddb/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := newRootCommand(cfg, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the flag values shared by every subcommand.
type cli struct {
	cfg    config.Config
	stderr io.Writer
}

func newRootCommand(cfg config.Config, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{cfg: cfg, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "fooddb",
		Short:         "Manage the food description database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfg.SQLiteDSN, "dsn", cfg.SQLiteDSN, "SQLite database path or DSN")
	flags.StringVar(&c.cfg.MigrationDir, "migrations", cfg.MigrationDir, "migration directory; empty uses the embedded migrations")
	flags.DurationVar(&c.cfg.MigrationTimeout, "timeout", cfg.MigrationTimeout, "timeout applied to each migration file")
	flags.StringVar(&c.cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&c.cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or text)")

	rootCmd.AddCommand(c.migrateCommand(), c.schemaCommand())

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, cmd.UsageString())
	})

	return rootCmd
}

func (c *cli) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(c.stderr, level, format), nil
}

// run wraps a subcommand so failures are logged once with the command name.
func (c *cli) run(fn func(ctx context.Context, cmd *cobra.Command, args []string, logger *slog.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger, err := c.logger()
		if err != nil {
			return err
		}
		logger = logger.With("command", cmd.CommandPath())
		ctx := logging.ContextWithLogger(cmd.Context(), logger)

		if err := fn(ctx, cmd, args, logger); err != nil {
			logger.Error("command failed", "error", err)
			return err
		}
		return nil
	}
}
