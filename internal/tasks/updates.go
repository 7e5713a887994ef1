package tasks

import (
	"fmt"

	"github.com/desertthunder/crate/internal/session"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data (a [session.Snapshot] during transfers)
}

// Operation phase enumeration
type Phase int

const (
	MatchItems Phase = iota
	CreatePlaylist
	AddTracks
	SaveLibrary
	BuildGuide
	Finished
	FetchSource
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case MatchItems:
		return "match_items"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case SaveLibrary:
		return "save_library"
	case BuildGuide:
		return "build_guide"
	case Finished:
		return "finished"
	case FetchSource:
		return "fetch_source"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func itemUpdate(snap session.Snapshot, label string, ok bool) ProgressUpdate {
	mark := "✓"
	if !ok {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   MatchItems,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: fmt.Sprintf("[%d/%d] %s %s", snap.Completed, snap.Total, mark, label),
		Data:    snap,
	}
}

func createPlaylistUpdate(snap session.Snapshot, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: fmt.Sprintf("Creating playlist %q...", name),
		Data:    snap,
	}
}

func addTracksUpdate(snap session.Snapshot, name string, added, matched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: fmt.Sprintf("Added %d/%d tracks to %q", added, matched, name),
		Data:    snap,
	}
}

func saveLibraryUpdate(snap session.Snapshot, kind string, n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveLibrary,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: fmt.Sprintf("Saving %d %s to the library...", n, kind),
		Data:    snap,
	}
}

func guideUpdate(snap session.Snapshot, artists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BuildGuide,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: fmt.Sprintf("Destination is search-only, built a guide for %d artists", artists),
		Data:    snap,
	}
}

func finishedUpdate(snap session.Snapshot) ProgressUpdate {
	msg := fmt.Sprintf("Transfer %s: %d/%d succeeded", snap.Phase, snap.Succeeded, snap.Total)
	if snap.Error != "" {
		msg += ": " + snap.Error
	}
	return ProgressUpdate{
		Phase:   Finished,
		Step:    snap.Completed,
		Total:   snap.Total,
		Message: msg,
		Data:    snap,
	}
}

func fetchSourceUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching tracks for %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
