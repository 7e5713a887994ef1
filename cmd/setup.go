package main

import (
	"context"
	"os"

	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes a config file from the template when none exists, then creates and migrates the
// database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	if err := config.Validate(); err != nil {
		return err
	}
	r.config = config

	r.logger.Info("initializing database", "path", config.Database.Path)
	if _, err := r.database(); err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("%s Database ready at %s\n", r.painter.OK("✓"), config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in [credentials] in %s\n", configPath)
	r.writePlain("2. Run 'crate auth login spotify' to connect your source library\n")
	return nil
}
