package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

// localUser keys transfer locks; the CLI acts for a single local user.
const localUser = "local"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Source, destinations and database are built from the config on first use unless injected.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	painter    ui.Painter
	source     services.Library
	registry   *services.Registry
	db         *sql.DB
	ownsDB     bool
	now        func() time.Time
	openURL    func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Painter    ui.Painter
	Source     services.Library
	Registry   *services.Registry
	DB         *sql.DB
	Now        func() time.Time
	OpenURL    func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Painter == nil {
		opts.Painter = ui.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenURL
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		painter:    opts.Painter,
		source:     opts.Source,
		registry:   opts.Registry,
		db:         opts.DB,
		now:        opts.Now,
		openURL:    opts.OpenURL,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, libraryCommand, transferCommand, cacheCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Close releases the database opened by the runner.
func (r *Runner) Close() {
	if r.db != nil && r.ownsDB {
		r.db.Close()
		r.db = nil
	}
}

// sourceLibrary returns the library transfers read from (Spotify).
func (r *Runner) sourceLibrary(ctx context.Context) (services.Library, error) {
	if r.source != nil {
		return r.source, nil
	}
	sp, _, err := services.SpotifyFromConfig(ctx, r.config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("spotify source unavailable: %w", err)
	}
	r.source = sp
	return r.source, nil
}

func (r *Runner) destinations(ctx context.Context) *services.Registry {
	if r.registry == nil {
		r.registry = services.RegistryFromConfig(ctx, r.config, r.logger)
	}
	return r.registry
}

// database opens and migrates the configured database once.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db, r.ownsDB = db, true
	return db, nil
}

// newEngine builds a transfer engine recording history and caching matches in the database.
func (r *Runner) newEngine(extra ...tasks.Option) (*tasks.Engine, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	matches := repositories.NewMatchRepository(db)

	opts := []tasks.Option{
		tasks.WithLogger(r.logger),
		tasks.WithRecorder(repositories.NewTransferRepository(db)),
		tasks.WithMatchCache(matches, matches),
	}
	return tasks.NewEngine(tasks.OptionsFromConfig(r.config.Transfer), append(opts, extra...)...), nil
}

func (r *Runner) lockDir() string {
	return filepath.Join(shared.ExpandHome(r.config.Auth.TokenDir), "locks")
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", r.painter.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}

