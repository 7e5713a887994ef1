package main

import (
	"context"
	"strconv"

	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

// CacheStats shows how many matches and failed lookups are cached per destination.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	repo := repositories.NewMatchRepository(db)

	destinations := []string{cmd.String("to")}
	if destinations[0] == "" {
		destinations = r.destinations(ctx).Names()
	}

	rows := make([][]string, 0, len(destinations))
	for _, dest := range destinations {
		stats, err := repo.Stats(ctx, dest)
		if err != nil {
			return err
		}
		rows = append(rows, []string{dest, strconv.Itoa(stats.Entries), strconv.Itoa(stats.Failures)})
	}

	r.writePlainHeader("Match cache")
	return r.writePlain("%s\n", ui.Table([]string{"Destination", "Matches", "Failed lookups"}, rows,
		ui.AlignLeft, ui.AlignRight, ui.AlignRight))
}

// CacheClear drops cached matches and failure backoff, for one destination or all of them.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	dest := cmd.String("to")
	n, err := repositories.NewMatchRepository(db).Clear(ctx, dest)
	if err != nil {
		return err
	}

	scope := "all destinations"
	if dest != "" {
		scope = dest
	}
	r.logger.Info("match cache cleared", "destination", scope, "rows", n)
	return r.writePlain("%s Removed %d cached entries for %s\n", r.painter.OK("✓"), n, scope)
}
