package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	tu "github.com/desertthunder/crate/internal/testing"
)

func cand(id, title string, duration int, artists ...string) models.Candidate {
	return models.Candidate{ID: id, Title: title, Artists: artists, Duration: duration}
}

func TestMatchTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("exact normalized match", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Café del Mar Energy 52",
			cand("x1", "Cafe Del Mar (Remix)", 0, "Energy 52"),
			cand("x2", "Café del Mar", 0, "ENERGY 52"),
		)
		track := models.Track{ID: "s1", Title: "Café del Mar", Artists: []string{"Energy 52"}}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatalf("MatchTrack() error = %v", err)
		}
		if res.Confidence != models.ConfidenceExact || res.DestinationID != "x2" {
			t.Errorf("got %s %q, want exact x2", res.Confidence, res.DestinationID)
		}
	})

	t.Run("query uses title and primary artist only", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest")
		track := models.Track{ID: "s1", Title: "Get Lucky", Artists: []string{"Daft Punk", "Pharrell Williams"}}

		_, err := New(WithAllArtists(false)).MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		q := dest.Queries()
		if len(q) != 1 || q[0] != "Get Lucky Daft Punk" {
			t.Errorf("queries = %v", q)
		}
	})

	t.Run("fuzzy falls back to top result", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Song Artist",
			cand("top", "Song (Live)", 0, "Artist"),
			cand("second", "Something Else", 0, "Other"),
		)
		res, err := New().MatchTrack(ctx, models.Track{ID: "s", Title: "Song", Artists: []string{"Artist"}}, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence != models.ConfidenceFuzzy || res.DestinationID != "top" {
			t.Errorf("got %s %q", res.Confidence, res.DestinationID)
		}
	})

	t.Run("zero results is none without error", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest")
		res, err := New().MatchTrack(ctx, models.Track{ID: "s", Title: "Nothing", Artists: []string{"Nobody"}}, dest)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Matched() || res.Confidence != models.ConfidenceNone {
			t.Errorf("expected none, got %+v", res)
		}
		if res.Label != "Nobody - Nothing" {
			t.Errorf("Label = %q", res.Label)
		}
	})

	t.Run("duration breaks exact ties", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Intro The xx",
			cand("short", "Intro", 60, "The xx"),
			cand("close", "Intro", 128, "The xx"),
			cand("long", "Intro", 300, "The xx"),
		)
		track := models.Track{ID: "s", Title: "Intro", Artists: []string{"The xx"}, Duration: 127}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.DestinationID != "close" {
			t.Errorf("DestinationID = %q, want close", res.DestinationID)
		}
	})

	t.Run("exact accepts any source artist as candidate primary", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Under Pressure Queen",
			cand("fuzzy", "Under Pressure (Remastered)", 0, "Queen"),
			cand("exact", "Under Pressure", 0, "David Bowie", "Queen"),
		)
		track := models.Track{ID: "s", Title: "Under Pressure", Artists: []string{"Queen", "David Bowie"}}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence != models.ConfidenceExact || res.DestinationID != "exact" {
			t.Errorf("got %s %q", res.Confidence, res.DestinationID)
		}
	})

	t.Run("primary artist outranks featured artist", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Stay Rihanna",
			cand("feat", "Stay", 0, "Mikky Ekko"),
			cand("real", "Stay", 0, "Rihanna", "Mikky Ekko"),
		)
		track := models.Track{ID: "s", Title: "Stay", Artists: []string{"Rihanna", "Mikky Ekko"}}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence != models.ConfidenceExact || res.DestinationID != "real" {
			t.Errorf("got %s %q, want exact real", res.Confidence, res.DestinationID)
		}
	})

	t.Run("duration decides within the primary artist tier", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Stay Rihanna",
			cand("feat", "Stay", 240, "Mikky Ekko"),
			cand("edit", "Stay", 180, "Rihanna"),
			cand("album", "Stay", 241, "Rihanna"),
		)
		track := models.Track{ID: "s", Title: "Stay", Artists: []string{"Rihanna", "Mikky Ekko"}, Duration: 240}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.DestinationID != "album" {
			t.Errorf("got %q, want album", res.DestinationID)
		}
	})

	t.Run("secondary artist fallback", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Stay With Me Calvin Harris",
			cand("c1", "Stay With Me", 0, "Calvin Harris"),
		)
		track := models.Track{ID: "s", Title: "Stay With Me (feat. Halsey)", Artists: []string{"Justin Bieber", "Calvin Harris"}}

		res, err := New(WithAllArtists(true)).MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Matched() || res.DestinationID != "c1" {
			t.Errorf("expected fallback match, got %+v", res)
		}
		if got := dest.Queries(); len(got) != 2 {
			t.Errorf("queries = %v", got)
		}
	})

	t.Run("isrc lookup wins", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").
			AddISRC("USRC17607839", cand("isrc-hit", "Smells Like Teen Spirit", 301, "Nirvana"))
		track := models.Track{ID: "s", Title: "Smells Like Teen Spirit", Artists: []string{"Nirvana"}, ISRC: "USRC17607839"}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence != models.ConfidenceISRC || res.DestinationID != "isrc-hit" {
			t.Errorf("got %s %q", res.Confidence, res.DestinationID)
		}
		if dest.Calls(tu.OpSearchTracks) != 0 {
			t.Error("search should not run after an isrc hit")
		}
	})

	t.Run("isrc miss falls back to search", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest").AddTrack("Song Artist", cand("t", "Song", 0, "Artist"))
		track := models.Track{ID: "s", Title: "Song", Artists: []string{"Artist"}, ISRC: "XX0000000000"}

		res, err := New().MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence != models.ConfidenceExact {
			t.Errorf("Confidence = %s", res.Confidence)
		}
		if dest.Calls(tu.OpLookupISRC) != 1 {
			t.Errorf("isrc lookups = %d", dest.Calls(tu.OpLookupISRC))
		}
	})

	t.Run("isrc skipped without capability", func(t *testing.T) {
		fake := tu.NewFakeCatalog("dest").AddTrack("Song Artist", cand("t", "Song", 0, "Artist"))
		track := models.Track{ID: "s", Title: "Song", Artists: []string{"Artist"}, ISRC: "XX0000000000"}

		res, err := New().MatchTrack(ctx, track, tu.PlaylistOnly(fake))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Matched() || fake.Calls(tu.OpLookupISRC) != 0 {
			t.Errorf("unexpected result %+v (isrc calls %d)", res, fake.Calls(tu.OpLookupISRC))
		}
	})

	t.Run("blank title never searches", func(t *testing.T) {
		dest := tu.NewFakeCatalog("dest")
		res, err := New().MatchTrack(ctx, models.Track{}, dest)
		if err != nil || res.Matched() {
			t.Errorf("got %+v, %v", res, err)
		}
		if dest.TotalCalls() != 0 {
			t.Errorf("unexpected calls: %d", dest.TotalCalls())
		}
	})
}

func TestMatchErrors(t *testing.T) {
	ctx := context.Background()
	track := models.Track{ID: "s", Title: "Song", Artists: []string{"Artist"}}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"unauthenticated propagates", fmt.Errorf("%w: 401", shared.ErrUnauthenticated), true},
		{"rate limit propagates", &shared.RateLimitError{Service: "dest"}, true},
		{"transport propagates", fmt.Errorf("%w: 503", shared.ErrTransport), true},
		{"not found is none", fmt.Errorf("%w: 404", shared.ErrNotFound), false},
		{"bad request is none", fmt.Errorf("%w: 400", shared.ErrInvalidInput), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := tu.NewFakeCatalog("dest").FailNext(tu.OpSearchTracks, tt.err)
			res, err := New(WithAllArtists(false)).MatchTrack(ctx, track, dest)
			if tt.wantErr {
				if !errors.Is(err, tt.err) && !errors.Is(err, shared.ErrRateLimited) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Matched() {
				t.Errorf("expected none, got %+v", res)
			}
		})
	}
}

func TestMatchAlbum(t *testing.T) {
	ctx := context.Background()
	dest := tu.NewFakeCatalog("dest").AddAlbum("Discovery Daft Punk",
		cand("a-deluxe", "Discovery (Deluxe)", 0, "Daft Punk"),
		cand("a-std", "Discovery", 0, "Daft Punk"),
	)

	t.Run("exact", func(t *testing.T) {
		res, err := New().MatchAlbum(ctx, models.Album{ID: "al", Title: "Discovery", Artists: []string{"Daft Punk"}}, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Kind != models.KindAlbum || res.Confidence != models.ConfidenceExact || res.DestinationID != "a-std" {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("none", func(t *testing.T) {
		res, err := New().MatchAlbum(ctx, models.Album{ID: "al2", Title: "Homework", Artists: []string{"Daft Punk"}}, dest)
		if err != nil {
			t.Fatal(err)
		}
		if res.Matched() {
			t.Errorf("expected none, got %+v", res)
		}
	})
}

func TestMatcherCaching(t *testing.T) {
	ctx := context.Background()
	clock := tu.NewClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	track := models.Track{ID: "s1", Title: "Song", Artists: []string{"Artist"}}

	t.Run("match cache short-circuits search", func(t *testing.T) {
		cache := NewMemoryCache()
		dest := tu.NewFakeCatalog("dest").AddTrack("Song Artist", cand("d1", "Song", 0, "Artist"))
		m := New(WithCache(cache), WithFailureCache(cache), WithClock(clock.Now))

		first, err := m.MatchTrack(ctx, track, dest)
		if err != nil || first.Cached {
			t.Fatalf("first match: %+v, %v", first, err)
		}

		second, err := m.MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if !second.Cached || second.DestinationID != "d1" || second.Confidence != models.ConfidenceExact {
			t.Errorf("second match = %+v", second)
		}
		if dest.Calls(tu.OpSearchTracks) != 1 {
			t.Errorf("searches = %d, want 1", dest.Calls(tu.OpSearchTracks))
		}

		stats := cache.Stats()
		if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("failure cache suppresses until backoff passes", func(t *testing.T) {
		cache := NewMemoryCache()
		dest := tu.NewFakeCatalog("dest")
		m := New(WithFailureCache(cache), WithClock(clock.Now))

		if _, err := m.MatchTrack(ctx, track, dest); err != nil {
			t.Fatal(err)
		}
		res, err := m.MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Cached || res.Matched() {
			t.Errorf("expected cached none, got %+v", res)
		}
		if dest.Calls(tu.OpSearchTracks) != 1 {
			t.Errorf("searches = %d, want 1", dest.Calls(tu.OpSearchTracks))
		}

		clock.Advance(FailureBackoff(1) + time.Second)
		dest.AddTrack("Song Artist", cand("late", "Song", 0, "Artist"))
		res, err = m.MatchTrack(ctx, track, dest)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Matched() || res.DestinationID != "late" {
			t.Errorf("expected fresh match, got %+v", res)
		}
		if cache.Stats().Failures != 0 {
			t.Error("failure should be cleared after a match")
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache := NewMemoryCache()
		dest := tu.NewFakeCatalog("dest").FailNext(tu.OpSearchTracks, shared.ErrTransport)
		m := New(WithCache(cache), WithFailureCache(cache), WithClock(clock.Now))

		if _, err := m.MatchTrack(ctx, track, dest); err == nil {
			t.Fatal("expected transport error")
		}
		if cache.Stats().Failures != 0 {
			t.Error("transport errors must not be recorded as misses")
		}
	})
}

func TestGate(t *testing.T) {
	calls := 0
	gate := func(ctx context.Context, call func(context.Context) error) error {
		calls++
		return call(ctx)
	}
	dest := tu.NewFakeCatalog("dest").AddTrack("Song Artist", cand("d", "Song", 0, "Artist"))

	if _, err := New(WithGate(gate)).MatchTrack(context.Background(), models.Track{ID: "s", Title: "Song", Artists: []string{"Artist"}}, dest); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("gate calls = %d, want 1", calls)
	}
}

func TestFailureBackoff(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 7 * day},
		{1, 7 * day},
		{2, 14 * day},
		{3, 28 * day},
		{4, 28 * day},
		{10, 28 * day},
	}
	for _, tt := range tests {
		if got := FailureBackoff(tt.count); got != tt.want {
			t.Errorf("FailureBackoff(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-1: 5, 0: 5, 1: 1, 7: 7, 10: 10, 50: 10} {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
