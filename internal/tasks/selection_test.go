package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	tu "github.com/desertthunder/crate/internal/testing"
)

func TestResolveSelection(t *testing.T) {
	ctx := context.Background()
	lib := &tu.FakeLibrary{
		Tracks: []models.Track{track("t1", "One", "A"), track("t2", "Two", "B"), track("t3", "Three", "C")},
		Albums: []models.Album{{ID: "a1", Title: "Album"}},
		Lists:  []models.Playlist{{ID: "p1", Name: "Mix", TrackCount: 2}},
		ListItems: map[string][]models.Track{
			"p1": {track("x1", "X", "Y"), track("x2", "Z", "Y")},
		},
	}

	t.Run("ids in requested order", func(t *testing.T) {
		job, err := ResolveSelection(ctx, lib, Selection{Destination: "tidal", Tracks: []string{"t3", "t1"}, Playlists: []string{"p1"}}, 2)
		if err != nil {
			t.Fatalf("ResolveSelection() error = %v", err)
		}
		if len(job.Tracks) != 2 || job.Tracks[0].ID != "t3" || job.Tracks[1].ID != "t1" {
			t.Errorf("tracks = %+v", job.Tracks)
		}
		if len(job.Playlists) != 1 || len(job.Playlists[0].Tracks) != 2 || !job.Playlists[0].TracksLoaded {
			t.Errorf("playlists = %+v", job.Playlists)
		}
		if job.ID == "" || job.Destination != "tidal" || job.Visibility != models.VisibilityPrivate {
			t.Errorf("job = %+v", job)
		}
		if err := job.Validate(); err != nil {
			t.Errorf("resolved job should validate: %v", err)
		}
	})

	t.Run("all albums", func(t *testing.T) {
		job, err := ResolveSelection(ctx, lib, Selection{Destination: "tidal", AllAlbums: true, Public: true}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(job.Albums) != 1 || job.Visibility != models.VisibilityPublic {
			t.Errorf("job = %+v", job)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := ResolveSelection(ctx, lib, Selection{Destination: "tidal", Tracks: []string{"nope"}}, 10)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty selection makes no requests", func(t *testing.T) {
		failing := &tu.FakeLibrary{Err: errors.New("should not be called")}
		_, err := ResolveSelection(ctx, failing, Selection{Destination: "tidal"}, 10)
		if !errors.Is(err, shared.ErrEmptySelection) {
			t.Errorf("expected ErrEmptySelection, got %v", err)
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := ResolveSelection(ctx, lib, Selection{Tracks: []string{"t1"}}, 10)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
