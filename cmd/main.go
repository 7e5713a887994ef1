package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	configPath := os.Getenv("CRATE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	config, err := shared.LoadConfigOrDefault(configPath)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		config = shared.DefaultConfig()
	}
	shared.SetLogLevel(logger, config.Log.Level)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "crate",
		Usage:    "Move a music library between streaming services",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}
