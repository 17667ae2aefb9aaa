package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/polish/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", r.configPath)
			if config, err := shared.LoadConfig(r.configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			} else {
				r.config = config
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	db, err := r.database()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"config":         r.configPath,
			"database":       r.config.Database.Path,
			"schema_version": version,
		}, cmd.Bool("pretty"))
	}

	r.writePlain("✓ Config: %s\n", r.configPath)
	r.writePlain("✓ Database: %s (schema version %d)\n", r.config.Database.Path, version)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.access_token (and refresh_token) in %s\n", r.configPath)
	r.writePlain("2. Run 'polish sort analyze <playlist>' to preview a sort\n")
	return nil
}
