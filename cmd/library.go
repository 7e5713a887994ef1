package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

const libraryPageSize = 50

// LibraryTracks lists saved tracks of the source library.
func (r *Runner) LibraryTracks(ctx context.Context, cmd *cli.Command) error {
	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}
	tracks, err := services.CollectAll(ctx, libraryPageSize, lib.SavedTracks)
	if err != nil {
		return fmt.Errorf("failed to fetch saved tracks: %w", err)
	}
	tracks = head(tracks, int(cmd.Int("limit")))

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, []string{t.ID, t.Title, strings.Join(t.Artists, ", "), t.Album, shared.FormatDuration(t.Duration)})
	}
	r.writePlainHeader(fmt.Sprintf("Saved tracks on %s (%d)", lib.Name(), len(tracks)))
	return r.writePlain("%s\n", ui.Table([]string{"ID", "Title", "Artists", "Album", "Length"}, rows,
		ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight))
}

// LibraryAlbums lists saved albums of the source library.
func (r *Runner) LibraryAlbums(ctx context.Context, cmd *cli.Command) error {
	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}
	albums, err := services.CollectAll(ctx, libraryPageSize, lib.SavedAlbums)
	if err != nil {
		return fmt.Errorf("failed to fetch saved albums: %w", err)
	}
	albums = head(albums, int(cmd.Int("limit")))

	if cmd.Bool("json") {
		return r.writeJSON(albums, cmd.Bool("pretty"))
	}

	rows := make([][]string, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, []string{a.ID, a.Title, strings.Join(a.Artists, ", "), strconv.Itoa(a.TrackCount), a.ReleaseDate})
	}
	r.writePlainHeader(fmt.Sprintf("Saved albums on %s (%d)", lib.Name(), len(albums)))
	return r.writePlain("%s\n", ui.Table([]string{"ID", "Title", "Artists", "Tracks", "Released"}, rows,
		ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight))
}

// LibraryPlaylists lists the source library's playlists.
func (r *Runner) LibraryPlaylists(ctx context.Context, cmd *cli.Command) error {
	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}
	lists, err := services.CollectAll(ctx, libraryPageSize, lib.Playlists)
	if err != nil {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}
	lists = head(lists, int(cmd.Int("limit")))

	if cmd.Bool("json") {
		return r.writeJSON(lists, cmd.Bool("pretty"))
	}

	rows := make([][]string, 0, len(lists))
	for _, p := range lists {
		rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.TrackCount), shared.VisibilityString(p.Public), p.Owner})
	}
	r.writePlainHeader(fmt.Sprintf("Playlists on %s (%d)", lib.Name(), len(lists)))
	return r.writePlain("%s\n", ui.Table([]string{"ID", "Name", "Tracks", "Visibility", "Owner"}, rows,
		ui.AlignLeft, ui.AlignLeft, ui.AlignRight))
}

// LibraryExport writes selected playlists to disk through the bulk exporter.
func (r *Runner) LibraryExport(ctx context.Context, cmd *cli.Command) error {
	ids := shared.SplitIDs(cmd.StringSlice("playlists")...)
	all := cmd.Bool("all")
	if len(ids) == 0 && !all {
		return fmt.Errorf("%w: pass --playlists or --all", shared.ErrEmptySelection)
	}

	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}
	lists, err := services.CollectAll(ctx, libraryPageSize, lib.Playlists)
	if err != nil {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}
	selected, err := selectPlaylists(lists, ids, all)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	engine := tasks.NewEngine(tasks.OptionsFromConfig(r.config.Transfer), tasks.WithLogger(r.logger), tasks.WithProgress(progress))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.Progress(r.output, r.painter, progress)
	}()

	result, err := engine.ExportPlaylists(ctx, lib, selected, tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Export complete")
	r.writePlain("Exported: %d/%d playlists\n", result.SuccessfulExports, result.TotalPlaylists)
	r.writePlain("Output: %s\n", result.OutputDirectory)
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	if result.FailedExports > 0 {
		r.writePlain("%s\n", r.painter.Warn(fmt.Sprintf("%d playlists failed, see the manifest for details", result.FailedExports)))
	}
	return nil
}

// selectPlaylists keeps the requested playlists in request order.
func selectPlaylists(lists []models.Playlist, ids []string, all bool) ([]models.Playlist, error) {
	if all {
		return lists, nil
	}
	byID := make(map[string]models.Playlist, len(lists))
	for _, p := range lists {
		byID[p.ID] = p
	}
	out := make([]models.Playlist, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
		}
		out = append(out, p)
	}
	return out, nil
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
