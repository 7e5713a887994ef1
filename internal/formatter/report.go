package formatter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/desertthunder/crate/internal/models"
	"gopkg.in/yaml.v3"
)

// WriteFailureReport writes the plain-text list of items that did not transfer: a summary line, then
// standalone tracks, standalone albums and one section per playlist, one "- " bullet per item.
// Sections without misses are omitted.
func WriteFailureReport(w io.Writer, r *models.Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Transfer %s to %s: %d/%d succeeded, %d unmatched\n",
		r.TransferID, r.Destination, r.Succeeded, r.Total, r.Unmatched())

	if r.Unmatched() == 0 {
		fmt.Fprintln(bw, "\nEverything was transferred.")
		return bw.Flush()
	}

	writeSection(bw, "Standalone tracks", r.Tracks)
	writeSection(bw, "Standalone albums", r.Albums)

	for _, p := range r.Playlists {
		if !p.Failed && len(p.Missing) == 0 {
			continue
		}
		fmt.Fprintf(bw, "\nPlaylist: %s\n", p.Name)
		if p.Failed {
			fmt.Fprintf(bw, "- (playlist not created: %s)\n", p.Reason)
		}
		for _, rec := range p.Missing {
			writeBullet(bw, rec)
		}
	}

	return bw.Flush()
}

func writeSection(w io.Writer, title string, recs []models.FailureRecord) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, rec := range recs {
		writeBullet(w, rec)
	}
}

func writeBullet(w io.Writer, rec models.FailureRecord) {
	if rec.Reason != "" {
		fmt.Fprintf(w, "- %s (%s)\n", rec.Label, rec.Reason)
		return
	}
	fmt.Fprintf(w, "- %s\n", rec.Label)
}

// ReportYAML encodes a report as YAML.
func ReportYAML(r *models.Report) ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// WriteGuide writes a migration guide as plain text, one block per artist.
func WriteGuide(w io.Writer, g *models.Guide) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Migration guide for %s (%d artists)\n", g.Destination, len(g.Artists))
	for _, entry := range g.Artists {
		fmt.Fprintf(bw, "\n%s\n", entry.Artist)
		if entry.ArtistURL != "" {
			fmt.Fprintf(bw, "  artist: %s\n", entry.ArtistURL)
		}
		if entry.SearchURL != "" {
			fmt.Fprintf(bw, "  search: %s\n", entry.SearchURL)
		}
		for _, item := range entry.Items {
			fmt.Fprintf(bw, "  - %s\n", item)
		}
	}

	return bw.Flush()
}

// GuideYAML encodes a guide as YAML.
func GuideYAML(g *models.Guide) ([]byte, error) {
	data, err := yaml.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode guide: %w", err)
	}
	return data, nil
}
