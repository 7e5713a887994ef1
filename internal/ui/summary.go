package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/tasks"
)

const rule = "═══════════════════════════════════════"

// Progress prints updates as they arrive and returns when the channel is closed.
func Progress(w io.Writer, p Painter, updates <-chan tasks.ProgressUpdate) {
	for u := range updates {
		switch u.Phase {
		case tasks.FetchSource:
			fmt.Fprintf(w, "📥 %s\n", u.Message)
		case tasks.CreatePlaylist:
			fmt.Fprintf(w, "\n📝 %s\n", u.Message)
		case tasks.AddTracks, tasks.SaveLibrary:
			fmt.Fprintf(w, "   %s\n", p.Help(u.Message))
		case tasks.BuildGuide:
			fmt.Fprintf(w, "\n🧭 %s\n", p.Warn(u.Message))
		case tasks.Finished:
			// rendered by Summary
		default:
			fmt.Fprintf(w, "   %s\n", u.Message)
		}
	}
}

// Summary renders the outcome of a finished transfer.
func Summary(p Painter, snap session.Snapshot, report *models.Report) string {
	var b strings.Builder

	b.WriteString(rule + "\n")
	switch snap.Phase {
	case session.Completed:
		b.WriteString(p.OK("Transfer complete") + "\n")
	default:
		b.WriteString(p.Err("Transfer "+snap.Phase.String()) + "\n")
	}
	b.WriteString(rule + "\n")

	fmt.Fprintf(&b, "Destination: %s\n", snap.Destination)
	fmt.Fprintf(&b, "Transferred: %d/%d (%d%% processed)\n\n", snap.Succeeded, snap.Total, snap.Percent)

	rows := [][]string{}
	for _, c := range []struct {
		name string
		c    session.Counter
	}{
		{"Tracks", snap.Tracks},
		{"Albums", snap.Albums},
		{"Playlists", snap.Playlists},
	} {
		if c.c.Total == 0 {
			continue
		}
		rows = append(rows, []string{c.name, strconv.Itoa(c.c.Total), strconv.Itoa(c.c.Completed), strconv.Itoa(c.c.Succeeded)})
	}
	if len(rows) > 0 {
		b.WriteString(Table([]string{"Kind", "Selected", "Processed", "Transferred"}, rows, AlignLeft, AlignRight, AlignRight, AlignRight))
		b.WriteString("\n")
	}

	if snap.Error != "" {
		b.WriteString("\n" + p.Err("Error: "+snap.Error) + "\n")
	}

	if report != nil {
		if n := report.Unmatched(); n > 0 {
			b.WriteString("\n" + p.Warn(fmt.Sprintf("%d items were not transferred.", n)) + "\n")
			b.WriteString(p.Help("Use --report to write the full list.") + "\n")
		}
		for _, pl := range report.Playlists {
			if pl.Failed {
				b.WriteString(p.Err(fmt.Sprintf("Playlist %q was not created: %s", pl.Name, pl.Reason)) + "\n")
			}
		}
	}
	return b.String()
}
