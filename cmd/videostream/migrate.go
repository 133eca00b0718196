package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/p1-videostream/internal/infrastructure/config"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/database"
	"github.com/nerrad567/p1-videostream/migrations"
)

const migrateUsage = `Usage: videostream migrate <up|down|status>

  up       Apply pending session history migrations
  down     Roll back the most recent migration
  status   List applied and pending migrations

The database path is read from the configuration file (VIDEOSTREAM_CONFIG).`

// errMigrateUsage is returned for a missing or unknown migrate subcommand.
var errMigrateUsage = errors.New("usage: videostream migrate <up|down|status>")

// runMigrate manages the session history schema without starting the bridge.
// It prints the resulting migration status to out.
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		fmt.Fprintln(out, migrateUsage)
		return errMigrateUsage
	}
	cmd := args[0]
	switch cmd {
	case "up", "down", "status":
	default:
		fmt.Fprintln(out, migrateUsage)
		return fmt.Errorf("%w: unknown subcommand %q", errMigrateUsage, cmd)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Nothing to do on a close error before exit

	switch cmd {
	case "up":
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	case "down":
		if err := db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	}

	return printMigrationStatus(ctx, db, out)
}

func printMigrationStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	fmt.Fprintf(out, "database: %s\n", db.Path())
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "no migrations")
	}
	return nil
}
