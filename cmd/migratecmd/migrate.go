// Package migratecmd wraps golang-migrate for the cloud replica's postgres
// schema. The local sqlite replica bootstraps its own schema on open.
package migratecmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres target
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// source
	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
)

const migrationsPath = "file://migrations"

// Command returns the migrate subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply cloud replica schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
}

func run(direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid direction %q (must be up or down)", direction)
	}

	cfg, log, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.Store.Cloud.Driver != "postgres" {
		return fmt.Errorf("migrations target postgres, store.cloud.driver is %q", cfg.Store.Cloud.Driver)
	}
	if cfg.Store.Cloud.DSN == "" {
		return errors.New("store.cloud.dsn is not configured")
	}

	m, err := migrate.New(migrationsPath, cfg.Store.Cloud.DSN)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no pending migrations")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", direction, err)
	}

	fmt.Printf("migration %s complete\n", direction)
	return nil
}
