// YouTube Music implementation of [Catalog] and [PlaylistWriter]
//
// Communicates with the FastAPI proxy wrapping ytmusicapi. The proxy owns the browser session;
// the headers file path is sent via the X-Auth-File header on each request.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const (
	YouTubeName = "youtube"

	defaultYTBaseURL = "http://localhost:8080"
	ytMusicBaseURL   = "https://music.youtube.com/"
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a song search result.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	DurationSec int             `json:"duration_seconds"`
	ISRC        string          `json:"isrc,omitempty"`
}

// YouTubeAlbum represents an album search result.
type YouTubeAlbum struct {
	BrowseID string          `json:"browseId"`
	Title    string          `json:"title"`
	Artists  []YouTubeArtist `json:"artists"`
	Year     string          `json:"year"`
}

// YouTube is a destination reached through the local proxy.
type YouTube struct {
	api *apiClient
}

// NewYouTube creates a YouTube Music catalog. authFile may be empty when the proxy holds its own
// credentials.
func NewYouTube(baseURL, authFile string, client *http.Client) *YouTube {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}
	api := newAPIClient(YouTubeName, baseURL, client)
	if authFile != "" {
		api.header.Set("X-Auth-File", authFile)
	}
	return &YouTube{api: api}
}

func (y *YouTube) Name() string {
	return YouTubeName
}

// SearchTracks calls GET /api/search?filter=songs on the proxy.
func (y *YouTube) SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	var results []YouTubeTrack
	if err := y.api.getJSON(ctx, "/api/search", y.searchQuery(query, "songs", limit), &results); err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(results))
	for _, r := range limitSlice(results, limit) {
		out = append(out, models.Candidate{
			ID:        r.VideoID,
			Title:     r.Title,
			Artists:   ytArtistNames(r.Artists),
			Duration:  r.DurationSec,
			ISRC:      r.ISRC,
			URL:       ytMusicBaseURL + "watch?v=" + url.QueryEscape(r.VideoID),
			ArtistURL: ytArtistLink(r.Artists),
		})
	}
	return out, nil
}

// SearchAlbums calls GET /api/search?filter=albums on the proxy.
func (y *YouTube) SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	var results []YouTubeAlbum
	if err := y.api.getJSON(ctx, "/api/search", y.searchQuery(query, "albums", limit), &results); err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(results))
	for _, r := range limitSlice(results, limit) {
		out = append(out, models.Candidate{
			ID:        r.BrowseID,
			Title:     r.Title,
			Artists:   ytArtistNames(r.Artists),
			URL:       ytMusicBaseURL + "browse/" + url.PathEscape(r.BrowseID),
			ArtistURL: ytArtistLink(r.Artists),
		})
	}
	return out, nil
}

// CreatePlaylist calls POST /api/playlists.
func (y *YouTube) CreatePlaylist(ctx context.Context, name, description string, visibility models.Visibility) (string, error) {
	req := struct {
		Title         string `json:"title"`
		Description   string `json:"description"`
		PrivacyStatus string `json:"privacy_status"`
	}{
		Title:         name,
		Description:   description,
		PrivacyStatus: "PRIVATE",
	}
	if visibility == models.VisibilityPublic {
		req.PrivacyStatus = "PUBLIC"
	}

	var resp struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := y.api.postJSON(ctx, "/api/playlists", req, &resp); err != nil {
		return "", err
	}
	if resp.PlaylistID == "" {
		return "", fmt.Errorf("%w: youtube: proxy returned no playlist id", shared.ErrTransport)
	}
	return resp.PlaylistID, nil
}

// AddTracksToPlaylist calls POST /api/playlists/{id}/items.
func (y *YouTube) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	req := struct {
		VideoIDs []string `json:"video_ids"`
	}{VideoIDs: trackIDs}
	return y.api.postJSON(ctx, "/api/playlists/"+url.PathEscape(playlistID)+"/items", req, nil)
}

func (y *YouTube) ArtistURL(c models.Candidate) string {
	return c.ArtistURL
}

func (y *YouTube) SearchURL(query string) string {
	return ytMusicBaseURL + "search?q=" + url.QueryEscape(query)
}

func (y *YouTube) searchQuery(q, filter string, limit int) url.Values {
	return url.Values{"q": {q}, "filter": {filter}, "limit": {strconv.Itoa(limit)}}
}

func ytArtistNames(artists []YouTubeArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

func ytArtistLink(artists []YouTubeArtist) string {
	if len(artists) == 0 || artists[0].ID == "" {
		return ""
	}
	return ytMusicBaseURL + "channel/" + url.PathEscape(artists[0].ID)
}

// limitSlice guards against proxies that ignore the limit parameter.
func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
