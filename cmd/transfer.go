package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

// TransferRun moves the selected source items to one destination.
//
// Interrupting the command cancels cooperatively: items in flight finish and the transfer is
// recorded as failed.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	sel := tasks.Selection{
		Destination: cmd.String("to"),
		Tracks:      shared.SplitIDs(cmd.StringSlice("tracks")...),
		Albums:      shared.SplitIDs(cmd.StringSlice("albums")...),
		Playlists:   shared.SplitIDs(cmd.StringSlice("playlists")...),
		AllTracks:   cmd.Bool("all-tracks"),
		AllAlbums:   cmd.Bool("all-albums"),
		Public:      cmd.Bool("public"),
	}
	if sel.Empty() {
		return fmt.Errorf("%w: pass --tracks, --albums, --playlists, --all-tracks or --all-albums", shared.ErrEmptySelection)
	}
	format, err := outputFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	dest, err := r.destinations(ctx).Get(sel.Destination)
	if err != nil {
		return err
	}
	sel.Destination = dest.Name()

	key := session.Key(localUser, dest.Name())
	lock, err := shared.AcquireTransferLock(r.lockDir(), key)
	if err != nil {
		return err
	}
	defer lock.Release()

	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("resolving selection", "source", lib.Name(), "destination", dest.Name())
	job, err := tasks.ResolveSelection(ctx, lib, sel, libraryPageSize)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	engine, err := r.newEngine(tasks.WithProgress(progress))
	if err != nil {
		return err
	}

	r.writePlain("Transferring %d items from %s to %s\n", job.TotalItems(), lib.Name(), dest.Name())
	r.writePlain("%s\n\n", r.painter.Help("Press Ctrl+C to stop after the items in flight."))

	sess := session.New(job, session.WithKey(key))
	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
		case <-sess.Done():
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.Progress(r.output, r.painter, progress)
	}()

	runErr := engine.Run(context.WithoutCancel(ctx), sess, dest)
	close(progress)
	<-done

	r.writePlain("\n%s", ui.Summary(r.painter, sess.Snapshot(), sess.Report()))

	if report := sess.Report(); report != nil && cmd.String("report") != "" {
		if err := writeReport(cmd.String("report"), report, format); err != nil {
			return err
		}
		r.writePlain("Report written to %s\n", cmd.String("report"))
	}
	if guide := sess.Guide(); guide != nil {
		if err := r.emitGuide(guide, cmd.String("guide"), format); err != nil {
			return err
		}
	}

	return runErr
}

// emitGuide writes the migration guide to path, or prints it when path is empty.
func (r *Runner) emitGuide(g *models.Guide, path, format string) error {
	var buf bytes.Buffer
	if format == formatter.FormatYAML {
		data, err := formatter.GuideYAML(g)
		if err != nil {
			return err
		}
		buf.Write(data)
	} else if err := formatter.WriteGuide(&buf, g); err != nil {
		return err
	}

	if path == "" {
		r.writePlainln("%s", r.painter.Title("Migration guide"))
		return r.writePlain("%s", buf.String())
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write guide: %w", err)
	}
	return r.writePlain("Guide written to %s\n", path)
}

// TransferHistory lists recorded transfers, newest first.
func (r *Runner) TransferHistory(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	records, err := repositories.NewTransferRepository(db).List(map[string]any{
		"destination": cmd.String("to"),
		"status":      cmd.String("status"),
		"limit":       int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]historyView, 0, len(records))
		for _, rec := range records {
			views = append(views, newHistoryView(rec))
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("No transfers recorded yet.\n")
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		started := ""
		if at := rec.StartedAt(); at != nil {
			started = at.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.Sequence()),
			rec.ID(),
			rec.Destination(),
			rec.Mode(),
			string(rec.Status()),
			fmt.Sprintf("%d/%d", rec.Succeeded(), rec.TotalItems()),
			started,
		})
	}
	r.writePlainHeader("Transfer history")
	return r.writePlain("%s\n", ui.Table([]string{"#", "ID", "Destination", "Mode", "Status", "Transferred", "Started"}, rows,
		ui.AlignRight, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight))
}

// TransferReport re-exports the failure report of a recorded transfer.
func (r *Runner) TransferReport(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if id == "" {
		return fmt.Errorf("%w: --id", shared.ErrMissingArgument)
	}
	format, err := outputFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	report, err := repositories.NewTransferRepository(db).Report(id)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := writeReport(path, report, format); err != nil {
			return err
		}
		return r.writePlain("Report written to %s\n", path)
	}
	return renderReport(r.output, report, format)
}

type historyView struct {
	Sequence    int        `json:"sequence"`
	ID          string     `json:"id"`
	Destination string     `json:"destination"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	Total       int        `json:"total_items"`
	Completed   int        `json:"completed_items"`
	Succeeded   int        `json:"succeeded"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newHistoryView(rec *models.TransferRecord) historyView {
	return historyView{
		Sequence:    rec.Sequence(),
		ID:          rec.ID(),
		Destination: rec.Destination(),
		Mode:        rec.Mode(),
		Status:      string(rec.Status()),
		Total:       rec.TotalItems(),
		Completed:   rec.CompletedItems(),
		Succeeded:   rec.Succeeded(),
		Error:       rec.ErrorMessage(),
		StartedAt:   rec.StartedAt(),
		CompletedAt: rec.CompletedAt(),
	}
}

// outputFormat accepts "txt" (default) or "yaml" for reports and guides.
func outputFormat(s string) (string, error) {
	if s == "" {
		return formatter.FormatText, nil
	}
	f, err := formatter.ParseFormat(s)
	if err != nil {
		return "", err
	}
	if f != formatter.FormatText && f != formatter.FormatYAML {
		return "", fmt.Errorf("%w: report format must be txt or yaml, got %q", shared.ErrInvalidArgument, s)
	}
	return f, nil
}

func renderReport(w io.Writer, report *models.Report, format string) error {
	if format == formatter.FormatYAML {
		data, err := formatter.ReportYAML(report)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return formatter.WriteFailureReport(w, report)
}

func writeReport(path string, report *models.Report, format string) error {
	var buf bytes.Buffer
	if err := renderReport(&buf, report, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

