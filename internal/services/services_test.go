package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	tu "github.com/desertthunder/crate/internal/testing"
)

func TestCollectAll(t *testing.T) {
	source := make([]int, 23)
	for i := range source {
		source[i] = i
	}

	t.Run("stops at short page", func(t *testing.T) {
		calls := 0
		got, err := CollectAll(context.Background(), 10, func(_ context.Context, offset, limit int) ([]int, error) {
			calls++
			end := min(offset+limit, len(source))
			return source[offset:end], nil
		})
		if err != nil {
			t.Fatalf("CollectAll() error = %v", err)
		}
		if len(got) != 23 {
			t.Errorf("len = %d, want 23", len(got))
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exact multiple needs one empty page", func(t *testing.T) {
		calls := 0
		got, err := CollectAll(context.Background(), 10, func(_ context.Context, offset, limit int) ([]int, error) {
			calls++
			end := min(offset+limit, 20)
			if offset >= 20 {
				return nil, nil
			}
			return source[offset:end], nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 20 || calls != 3 {
			t.Errorf("got %d items in %d calls", len(got), calls)
		}
	})

	t.Run("propagates errors", func(t *testing.T) {
		_, err := CollectAll(context.Background(), 10, func(context.Context, int, int) ([]int, error) {
			return nil, shared.ErrTransport
		})
		if !errors.Is(err, shared.ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
	})

	t.Run("rejects zero page size", func(t *testing.T) {
		_, err := CollectAll(context.Background(), 0, func(context.Context, int, int) ([]int, error) {
			return nil, nil
		})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

type pagedLibrary struct {
	tracks []models.Track
}

func (p *pagedLibrary) Name() string { return "paged" }
func (p *pagedLibrary) SavedTracks(context.Context, int, int) ([]models.Track, error) {
	return nil, nil
}
func (p *pagedLibrary) SavedAlbums(context.Context, int, int) ([]models.Album, error) {
	return nil, nil
}
func (p *pagedLibrary) Playlists(context.Context, int, int) ([]models.Playlist, error) {
	return nil, nil
}
func (p *pagedLibrary) PlaylistTracks(_ context.Context, _ string, offset, limit int) ([]models.Track, error) {
	if offset >= len(p.tracks) {
		return nil, nil
	}
	return p.tracks[offset:min(offset+limit, len(p.tracks))], nil
}

func TestResolvePlaylist(t *testing.T) {
	lib := &pagedLibrary{tracks: []models.Track{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	p, err := ResolvePlaylist(context.Background(), lib, models.Playlist{ID: "pl", Name: "Mix", TrackCount: 3}, 2)
	if err != nil {
		t.Fatalf("ResolvePlaylist() error = %v", err)
	}
	if !p.TracksLoaded || len(p.Tracks) != 3 {
		t.Errorf("playlist not resolved: %+v", p)
	}
	if p.Tracks[2].ID != "3" {
		t.Errorf("order lost: %+v", p.Tracks)
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		catalog   Catalog
		guideOnly bool
		want      string
	}{
		{"spotify", NewSpotify(http.DefaultClient), false, "search,isrc,playlists,library,links"},
		{"tidal", NewTidal(http.DefaultClient, "", ""), false, "search,isrc,playlists,library,links"},
		{"youtube", NewYouTube("", "", nil), false, "search,playlists,links"},
		{"applemusic", NewAppleMusic(nil, "", ""), true, "search,links"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := Capabilities(tt.catalog)
			if caps.GuideOnly() != tt.guideOnly {
				t.Errorf("GuideOnly() = %v", caps.GuideOnly())
			}
			if caps.String() != tt.want {
				t.Errorf("String() = %q, want %q", caps.String(), tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewAppleMusic(nil, "", ""), NewYouTube("", "", nil))

	t.Run("get is case insensitive", func(t *testing.T) {
		c, err := reg.Get("AppleMusic")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if c.Name() != AppleMusicName {
			t.Errorf("Name() = %q", c.Name())
		}
	})

	t.Run("unknown destination", func(t *testing.T) {
		_, err := reg.Get("napster")
		if !errors.Is(err, shared.ErrUnknownDestination) {
			t.Errorf("expected ErrUnknownDestination, got %v", err)
		}
	})

	t.Run("names sorted", func(t *testing.T) {
		names := reg.Names()
		if len(names) != 2 || names[0] != AppleMusicName || names[1] != YouTubeName {
			t.Errorf("Names() = %v", names)
		}
	})
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, shared.ErrUnauthenticated},
		{http.StatusForbidden, shared.ErrForbidden},
		{http.StatusTooManyRequests, shared.ErrRateLimited},
		{http.StatusNotFound, shared.ErrNotFound},
		{http.StatusBadGateway, shared.ErrTransport},
		{http.StatusServiceUnavailable, shared.ErrTransport},
		{http.StatusBadRequest, shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := StatusError("svc", tt.status, "", []byte(`{"detail":"nope"}`))
			if !errors.Is(err, tt.want) {
				t.Errorf("StatusError(%d) = %v, want %v", tt.status, err, tt.want)
			}
		})
	}

	t.Run("retry after seconds", func(t *testing.T) {
		err := StatusError("svc", http.StatusTooManyRequests, "7", nil)
		if got := shared.RetryAfter(err); got != 7*time.Second {
			t.Errorf("RetryAfter = %v", got)
		}
	})

	t.Run("detail is surfaced", func(t *testing.T) {
		err := StatusError("svc", http.StatusBadRequest, "", []byte(`{"userMessage":"bad query"}`))
		if got := err.Error(); got != "invalid input: svc returned 400: bad query" {
			t.Errorf("Error() = %q", got)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAPIClient(t *testing.T) {
	t.Run("network failure is transport", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset"))}
		api := newAPIClient("svc", "http://example.invalid", client)

		err := api.getJSON(context.Background(), "/search", nil, nil)
		if !errors.Is(err, shared.ErrTransport) {
			t.Errorf("getJSON() = %v, want ErrTransport", err)
		}
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, context.Canceled)}
		api := newAPIClient("svc", "http://example.invalid", client)

		err := api.getJSON(context.Background(), "/search", nil, nil)
		if !errors.Is(err, context.Canceled) || errors.Is(err, shared.ErrTransport) {
			t.Errorf("getJSON() = %v, want context.Canceled", err)
		}
	})

	t.Run("unreadable body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Body: &tu.FCloser{}}
		client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
		api := newAPIClient("svc", "http://example.invalid", client)

		var out map[string]any
		err := api.getJSON(context.Background(), "/search", nil, &out)
		if !errors.Is(err, shared.ErrTransport) {
			t.Errorf("getJSON() = %v, want ErrTransport", err)
		}
	})

	t.Run("endpoint joins path and query", func(t *testing.T) {
		api := newAPIClient("svc", "http://host/v1/", nil)
		got := api.endpoint("/search", map[string][]string{"q": {"a b"}})
		if got != "http://host/v1/search?q=a+b" {
			t.Errorf("endpoint() = %q", got)
		}
	})
}
