// Spotify Web API implementation of [Catalog] and [Library]
//
// Backed by github.com/zmb3/spotify/v2; authentication is supplied by the *http.Client from
// [auth.Provider.Client].
package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/zmb3/spotify/v2"
)

const (
	SpotifyName = "spotify"

	spotifySearchURL = "https://open.spotify.com/search/"
	// placeholderTitle stands in for playlist entries that are not tracks (podcast episodes)
	placeholderTitle = ""
)

// Spotify is both a source [Library] and a full destination.
type Spotify struct {
	client *spotify.Client

	mu     sync.Mutex
	userID string
}

// NewSpotify wraps an authorized HTTP client. Retries are left to the transfer engine so that
// rate limits are counted per item.
func NewSpotify(httpClient *http.Client, opts ...spotify.ClientOption) *Spotify {
	opts = append([]spotify.ClientOption{spotify.WithRetry(false)}, opts...)
	return &Spotify{client: spotify.New(withRateLimitHint(httpClient), opts...)}
}

// withRateLimitHint returns a copy of c whose 429 responses fail with a [shared.RateLimitError]
// carrying Retry-After. The spotify client decodes error bodies into a type without headers.
func withRateLimitHint(c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	clone := *c
	clone.Transport = rateLimitTransport{next: next}
	return &clone
}

type rateLimitTransport struct {
	next http.RoundTripper
}

func (t rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	return nil, &shared.RateLimitError{
		Service:    SpotifyName,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// NewSpotifyWithBaseURL points the client at an alternate API root (tests, proxies).
func NewSpotifyWithBaseURL(httpClient *http.Client, baseURL string) *Spotify {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return NewSpotify(httpClient, spotify.WithBaseURL(baseURL))
}

func (s *Spotify) Name() string {
	return SpotifyName
}

func (s *Spotify) SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	res, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, spotifyError(err)
	}
	if res == nil || res.Tracks == nil {
		return nil, nil
	}

	out := make([]models.Candidate, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		out = append(out, spotifyCandidate(t))
	}
	return out, nil
}

func (s *Spotify) SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	res, err := s.client.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(limit))
	if err != nil {
		return nil, spotifyError(err)
	}
	if res == nil || res.Albums == nil {
		return nil, nil
	}

	out := make([]models.Candidate, 0, len(res.Albums.Albums))
	for _, a := range res.Albums.Albums {
		out = append(out, models.Candidate{
			ID:        string(a.ID),
			Title:     a.Name,
			Artists:   spotifyArtistNames(a.Artists),
			URL:       a.ExternalURLs["spotify"],
			ArtistURL: spotifyArtistURL(a.Artists),
		})
	}
	return out, nil
}

// LookupISRC uses the "isrc:" search field filter and keeps only exact code matches.
func (s *Spotify) LookupISRC(ctx context.Context, isrc string) ([]models.Candidate, error) {
	found, err := s.SearchTracks(ctx, "isrc:"+isrc, 5)
	if err != nil {
		return nil, err
	}

	var out []models.Candidate
	for _, c := range found {
		if strings.EqualFold(c.ISRC, isrc) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Spotify) CreatePlaylist(ctx context.Context, name, description string, visibility models.Visibility) (string, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return "", err
	}

	pl, err := s.client.CreatePlaylistForUser(ctx, userID, name, description, visibility == models.VisibilityPublic, false)
	if err != nil {
		return "", spotifyError(err)
	}
	return string(pl.ID), nil
}

func (s *Spotify) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if _, err := s.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), spotifyIDs(trackIDs)...); err != nil {
		return spotifyError(err)
	}
	return nil
}

func (s *Spotify) SaveTracks(ctx context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	return spotifyError(s.client.AddTracksToLibrary(ctx, spotifyIDs(trackIDs)...))
}

func (s *Spotify) SaveAlbums(ctx context.Context, albumIDs []string) error {
	if len(albumIDs) == 0 {
		return nil
	}
	return spotifyError(s.client.AddAlbumsToLibrary(ctx, spotifyIDs(albumIDs)...))
}

func (s *Spotify) ArtistURL(c models.Candidate) string {
	return c.ArtistURL
}

func (s *Spotify) SearchURL(query string) string {
	return spotifySearchURL + url.PathEscape(query)
}

func (s *Spotify) SavedTracks(ctx context.Context, offset, limit int) ([]models.Track, error) {
	page, err := s.client.CurrentUsersTracks(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, spotifyError(err)
	}

	out := make([]models.Track, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		out = append(out, spotifyTrack(t.FullTrack))
	}
	return out, nil
}

func (s *Spotify) SavedAlbums(ctx context.Context, offset, limit int) ([]models.Album, error) {
	page, err := s.client.CurrentUsersAlbums(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, spotifyError(err)
	}

	out := make([]models.Album, 0, len(page.Albums))
	for _, a := range page.Albums {
		out = append(out, models.Album{
			ID:          string(a.ID),
			Title:       a.Name,
			Artists:     spotifyArtistNames(a.Artists),
			TrackCount:  int(a.Tracks.Total),
			ReleaseDate: a.ReleaseDate,
		})
	}
	return out, nil
}

func (s *Spotify) Playlists(ctx context.Context, offset, limit int) ([]models.Playlist, error) {
	page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, spotifyError(err)
	}

	out := make([]models.Playlist, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		out = append(out, models.Playlist{
			ID:          string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Owner:       p.Owner.DisplayName,
			Public:      p.IsPublic,
			TrackCount:  int(p.Tracks.Total),
		})
	}
	return out, nil
}

// PlaylistTracks keeps one entry per playlist item so short-page detection stays correct; items
// that are not tracks become untitled placeholders that never match.
func (s *Spotify) PlaylistTracks(ctx context.Context, playlistID string, offset, limit int) ([]models.Track, error) {
	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, spotifyError(err)
	}

	out := make([]models.Track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track.Track == nil {
			out = append(out, models.Track{Title: placeholderTitle})
			continue
		}
		out = append(out, spotifyTrack(*item.Track.Track))
	}
	return out, nil
}

func (s *Spotify) currentUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID != "" {
		return s.userID, nil
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return "", spotifyError(err)
	}
	s.userID = user.ID
	return s.userID, nil
}

func spotifyTrack(t spotify.FullTrack) models.Track {
	return models.Track{
		ID:       string(t.ID),
		Title:    t.Name,
		Artists:  spotifyArtistNames(t.Artists),
		AlbumID:  string(t.Album.ID),
		Album:    t.Album.Name,
		Duration: int(t.Duration) / 1000,
		ISRC:     t.ExternalIDs["isrc"],
	}
}

func spotifyCandidate(t spotify.FullTrack) models.Candidate {
	return models.Candidate{
		ID:        string(t.ID),
		Title:     t.Name,
		Artists:   spotifyArtistNames(t.Artists),
		Duration:  int(t.Duration) / 1000,
		ISRC:      t.ExternalIDs["isrc"],
		URL:       t.ExternalURLs["spotify"],
		ArtistURL: spotifyArtistURL(t.Artists),
	}
}

func spotifyArtistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

func spotifyArtistURL(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].ExternalURLs["spotify"]
}

func spotifyIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}

// spotifyError maps client errors onto the shared taxonomy.
func spotifyError(err error) error {
	if err == nil {
		return nil
	}

	var limited *shared.RateLimitError
	if errors.As(err, &limited) {
		return limited
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return StatusError(SpotifyName, apiErr.Status, "", []byte(apiErr.Message))
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return StatusError(SpotifyName, apiErrPtr.Status, "", []byte(apiErrPtr.Message))
	}

	// errors with an empty body arrive as plain "spotify: HTTP 401: ..." strings
	if m := spotifyHTTPStatus.FindStringSubmatch(err.Error()); m != nil {
		if status, convErr := strconv.Atoi(m[1]); convErr == nil {
			return StatusError(SpotifyName, status, "", nil)
		}
	}

	return transportError(SpotifyName, err)
}

var spotifyHTTPStatus = regexp.MustCompile(`HTTP (\d{3})`)
