package formatter

import (
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// ManifestEntry records the outcome of exporting one playlist.
type ManifestEntry struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Tracks int      `json:"tracks"`
	Files  []string `json:"files,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ExportManifest summarizes a bulk export and is written next to the exported files.
type ExportManifest struct {
	Source         string          `json:"source"`
	Format         string          `json:"format"`
	ExportedAt     time.Time       `json:"exported_at"`
	TotalPlaylists int             `json:"total_playlists"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Playlists      []ManifestEntry `json:"playlists"`
}

// WriteExportManifest writes m as indented JSON to path.
func WriteExportManifest(m *ExportManifest, path string) error {
	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
