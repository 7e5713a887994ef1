package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultExportWorkers = 5
	maxExportWorkers     = 10
	defaultExportRate    = 5.0
	defaultPageSize      = 50
	manifestFile         = "export_manifest.json"
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt, yaml
	OutputDir  string  // Base output directory (default: {source}_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 5, max: 10)
	RateLimit  float64 // Track page requests per second (default: 5)
	PageSize   int     // Tracks per page request (default: 50)
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string
	PlaylistName string
	Tracks       int
	Files        []string
	Success      bool
	Error        error
}

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	TotalPlaylists    int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []PlaylistExportResult
}

type exportJob struct {
	index    int
	playlist models.Playlist
}

// ExportPlaylists writes playlists from a source library to disk, one file set per playlist.
//
// A producer resolves track lists under a rate limiter and hands them to a worker pool that
// writes files. Individual failures are recorded and do not stop the export; a manifest
// summarizing every playlist is written last.
func (e *Engine) ExportPlaylists(ctx context.Context, lib services.Library, playlists []models.Playlist, opts BulkExportOpts) (*BulkExportResult, error) {
	if lib == nil {
		return nil, fmt.Errorf("%w: source library not initialized", shared.ErrMissingArgument)
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: no playlists selected", shared.ErrEmptySelection)
	}

	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	opts.Format = format

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("%s_export_%d", lib.Name(), time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultExportWorkers
	}
	opts.NumWorkers = min(opts.NumWorkers, maxExportWorkers)
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultExportRate
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := len(playlists)
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan exportJob, total)
	results := make(chan PlaylistExportResult, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, p := range playlists {
			if ctx.Err() != nil {
				return
			}
			e.sendProgress(fetchSourceUpdate(i+1, total, p.Name))

			if !p.TracksLoaded {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				resolved, err := services.ResolvePlaylist(ctx, lib, p, opts.PageSize)
				if err != nil {
					results <- PlaylistExportResult{PlaylistID: p.ID, PlaylistName: p.Name, Error: err}
					continue
				}
				p = resolved
			}
			jobs <- exportJob{index: i, playlist: p}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BulkExportResult{
		TotalPlaylists:  total,
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, total),
	}

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(exportCompletedUpdate(completed, total, res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			e.logger.Warn("playlist export failed", "playlist", res.PlaylistName, "error", res.Error)
			e.sendProgress(exportFailedUpdate(completed, total, res.PlaylistName, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: export stopped after %d of %d playlists", shared.ErrCancelled, completed, total)
	}

	manifestPath := filepath.Join(opts.OutputDir, manifestFile)
	if err := formatter.WriteExportManifest(manifestOf(lib.Name(), opts.Format, result), manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker is a worker goroutine that exports playlists from the jobs channel.
func (e *Engine) exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan exportJob, results chan<- PlaylistExportResult, opts BulkExportOpts) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}

		p := job.playlist
		res := PlaylistExportResult{PlaylistID: p.ID, PlaylistName: p.Name, Tracks: len(p.Tracks)}
		files, err := formatter.WriteExport(p, opts.Format, opts.OutputDir)
		if err != nil {
			res.Error = fmt.Errorf("%s export failed: %w", opts.Format, err)
		} else {
			res.Files = files
			res.Success = true
		}
		results <- res
	}
}

func manifestOf(source, format string, r *BulkExportResult) *formatter.ExportManifest {
	m := &formatter.ExportManifest{
		Source:         source,
		Format:         format,
		ExportedAt:     time.Now().UTC(),
		TotalPlaylists: r.TotalPlaylists,
		Successful:     r.SuccessfulExports,
		Failed:         r.FailedExports,
		Playlists:      make([]formatter.ManifestEntry, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		entry := formatter.ManifestEntry{ID: res.PlaylistID, Name: res.PlaylistName, Tracks: res.Tracks, Files: res.Files}
		if res.Error != nil {
			entry.Error = res.Error.Error()
		}
		m.Playlists = append(m.Playlists, entry)
	}
	return m
}
