// package formatter renders playlists, failure reports and migration guides as CSV, Markdown, plain
// text, JSON and YAML.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format names accepted by [WriteExport].
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
	FormatYAML     = "yaml"
)

// ParseFormat maps user input (including the "md", "text" and "yml" aliases) to a format name.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (json, csv, markdown, txt, yaml)", shared.ErrInvalidArgument, s)
	}
}

// ExportToCSV converts a playlist to CSV with columns: ID, Title, Artist, Album, Duration, ISRC.
// Multiple artists are joined with "; ".
func ExportToCSV(p models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range p.Tracks {
		record := []string{
			track.ID,
			track.Title,
			strings.Join(track.Artists, "; "),
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown.
func ExportToMarkdown(p models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Name)

	if p.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", p.Description)
	}
	if p.Owner != "" {
		fmt.Fprintf(&buf, "**Owner**: %s\n", p.Owner)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(p.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", shared.VisibilityString(p.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range p.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s]\n", i+1, track.Label(), albumPart, shared.FormatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text.
func ExportToText(p models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(p.Tracks))

	for i, track := range p.Tracks {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, track.Label())
	}

	return buf.Bytes(), nil
}

// ExportToYAML converts a playlist, tracks included, to YAML.
func ExportToYAML(p models.Playlist) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return data, nil
}

// ToMetadataJSON generates a JSON representation of playlist metadata (without tracks)
func ToMetadataJSON(p models.Playlist) ([]byte, error) {
	p.Tracks = nil
	return shared.MarshalJSON(p, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a playlist to CSV format with accompanying metadata JSON file.
//
// Defaults to playlist ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(p models.Playlist, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = p.ID
	}

	csvData, err := ExportToCSV(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport writes {dir}/README.md. The directory defaults to the playlist ID.
func WriteMarkdownExport(p models.Playlist, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = p.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(p)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport exports a playlist to plain text format.
//
// Defaults to {playlist.ID}_tracks.txt as the filename.
func WriteTextExport(p models.Playlist, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", p.ID)
	}

	textData, err := ExportToText(p)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteExport writes p into dir in the given format and returns the created files.
func WriteExport(p models.Playlist, format, dir string) ([]string, error) {
	base := filepath.Join(dir, safeName(p))

	switch format {
	case FormatCSV:
		res, err := WriteCSVExport(p, base)
		if err != nil {
			return nil, err
		}
		return []string{res.TracksFile, res.MetadataFile}, nil
	case FormatMarkdown:
		file, err := WriteMarkdownExport(p, base)
		if err != nil {
			return nil, err
		}
		return []string{file}, nil
	case FormatText:
		file, err := WriteTextExport(p, base+"_tracks.txt")
		if err != nil {
			return nil, err
		}
		return []string{file}, nil
	case FormatYAML:
		data, err := ExportToYAML(p)
		if err != nil {
			return nil, err
		}
		return writeFile(base+".yaml", data)
	case FormatJSON, "":
		data, err := shared.MarshalJSON(p, true)
		if err != nil {
			return nil, fmt.Errorf("JSON marshal failed: %w", err)
		}
		return writeFile(base+".json", data)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

func writeFile(path string, data []byte) ([]string, error) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return []string{path}, nil
}

// safeName prefers the playlist ID and falls back to a filesystem-safe form of the name.
func safeName(p models.Playlist) string {
	name := p.ID
	if name == "" {
		name = p.Name
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "playlist"
	}
	return name
}
