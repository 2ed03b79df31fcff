package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/docdash/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the bundled config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Config written to %s\n", r.configPath)
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if loaded, err := shared.LoadConfig(r.configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			config = loaded
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	if config.History.Backend != "sqlite" {
		r.writePlainln("Set history.backend = \"sqlite\" in %s to record task history there.", r.configPath)
	}
	return nil
}
