package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// Selection names source items by id. AllTracks and AllAlbums select the whole saved list.
type Selection struct {
	Destination string   `json:"destination"`
	Tracks      []string `json:"tracks,omitempty"`
	Albums      []string `json:"albums,omitempty"`
	Playlists   []string `json:"playlists,omitempty"`
	AllTracks   bool     `json:"all_tracks,omitempty"`
	AllAlbums   bool     `json:"all_albums,omitempty"`
	Public      bool     `json:"public,omitempty"`
}

func (s Selection) Empty() bool {
	return len(s.Tracks) == 0 && len(s.Albums) == 0 && len(s.Playlists) == 0 && !s.AllTracks && !s.AllAlbums
}

// ResolveSelection loads the selected items from lib and builds a job with every playlist's tracks
// resolved. An empty selection fails before any request.
func ResolveSelection(ctx context.Context, lib services.Library, sel Selection, pageSize int) (models.TransferJob, error) {
	job := models.TransferJob{ID: shared.GenerateID(), Destination: sel.Destination}
	if sel.Public {
		job.Visibility = models.VisibilityPublic
	}

	if sel.Empty() {
		return job, fmt.Errorf("%w: no tracks, albums or playlists selected", shared.ErrEmptySelection)
	}
	if sel.Destination == "" {
		return job, fmt.Errorf("%w: destination", shared.ErrMissingArgument)
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	if sel.AllTracks || len(sel.Tracks) > 0 {
		saved, err := services.CollectAll(ctx, pageSize, lib.SavedTracks)
		if err != nil {
			return job, fmt.Errorf("failed to load saved tracks: %w", err)
		}
		job.Tracks, err = pick(saved, sel.Tracks, sel.AllTracks, func(t models.Track) string { return t.ID }, "track")
		if err != nil {
			return job, err
		}
	}

	if sel.AllAlbums || len(sel.Albums) > 0 {
		saved, err := services.CollectAll(ctx, pageSize, lib.SavedAlbums)
		if err != nil {
			return job, fmt.Errorf("failed to load saved albums: %w", err)
		}
		job.Albums, err = pick(saved, sel.Albums, sel.AllAlbums, func(a models.Album) string { return a.ID }, "album")
		if err != nil {
			return job, err
		}
	}

	if len(sel.Playlists) > 0 {
		lists, err := services.CollectAll(ctx, pageSize, lib.Playlists)
		if err != nil {
			return job, fmt.Errorf("failed to load playlists: %w", err)
		}
		picked, err := pick(lists, sel.Playlists, false, func(p models.Playlist) string { return p.ID }, "playlist")
		if err != nil {
			return job, err
		}
		for _, p := range picked {
			resolved, err := services.ResolvePlaylist(ctx, lib, p, pageSize)
			if err != nil {
				return job, err
			}
			job.Playlists = append(job.Playlists, resolved)
		}
	}

	return job, nil
}

// pick returns the items whose ids are listed, in the order listed. Unknown ids are an error.
func pick[T any](items []T, ids []string, all bool, idOf func(T) string, kind string) ([]T, error) {
	if all {
		return items, nil
	}

	byID := make(map[string]T, len(items))
	for _, it := range items {
		byID[idOf(it)] = it
	}

	out := make([]T, 0, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		it, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, it)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s %s", shared.ErrNotFound, kind, strings.Join(missing, ", "))
	}
	return out, nil
}
