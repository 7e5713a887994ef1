// TIDAL implementation of [Catalog], [ISRCLookup], [PlaylistWriter] and [LibraryWriter]
//
// Uses the v1 API (https://api.tidal.com/v1/) with a fixed endpoint set:
//
//	GET  sessions
//	GET  search/tracks, search/albums
//	GET  tracks?isrc=
//	POST users/{id}/playlists
//	GET  playlists/{uuid}             (ETag for writes)
//	POST playlists/{uuid}/items
//	POST users/{id}/favorites/tracks, users/{id}/favorites/albums
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const (
	TidalName = "tidal"

	defaultTidalBaseURL = "https://api.tidal.com/v1"
	tidalArtistURL      = "https://tidal.com/browse/artist/"
	tidalSearchURL      = "https://listen.tidal.com/search?q="
)

type tidalArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type tidalTrack struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Duration int           `json:"duration"`
	ISRC     string        `json:"isrc"`
	URL      string        `json:"url"`
	Artists  []tidalArtist `json:"artists"`
	Album    struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"album"`
}

type tidalAlbum struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	NumberOfTracks int           `json:"numberOfTracks"`
	ReleaseDate    string        `json:"releaseDate"`
	URL            string        `json:"url"`
	Artists        []tidalArtist `json:"artists"`
}

type tidalPage[T any] struct {
	Limit              int `json:"limit"`
	Offset             int `json:"offset"`
	TotalNumberOfItems int `json:"totalNumberOfItems"`
	Items              []T `json:"items"`
}

// Tidal talks to the v1 API with a token-bearing client from [auth.Provider.Client].
type Tidal struct {
	api     *apiClient
	country string

	mu     sync.Mutex
	userID string
}

// NewTidal builds a TIDAL catalog. An empty baseURL selects the public v1 API.
func NewTidal(client *http.Client, baseURL, countryCode string) *Tidal {
	if baseURL == "" {
		baseURL = defaultTidalBaseURL
	}
	if countryCode == "" {
		countryCode = "US"
	}
	return &Tidal{api: newAPIClient(TidalName, baseURL, client), country: countryCode}
}

func (t *Tidal) Name() string {
	return TidalName
}

func (t *Tidal) query(kv ...string) url.Values {
	t.mu.Lock()
	q := url.Values{"countryCode": {t.country}}
	t.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

func (t *Tidal) SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	var page tidalPage[tidalTrack]
	if err := t.api.getJSON(ctx, "search/tracks", t.query("query", query, "limit", strconv.Itoa(limit)), &page); err != nil {
		return nil, err
	}
	return tidalTrackCandidates(page.Items), nil
}

func (t *Tidal) SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	var page tidalPage[tidalAlbum]
	if err := t.api.getJSON(ctx, "search/albums", t.query("query", query, "limit", strconv.Itoa(limit)), &page); err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(page.Items))
	for _, a := range page.Items {
		out = append(out, models.Candidate{
			ID:        strconv.FormatInt(a.ID, 10),
			Title:     a.Title,
			Artists:   tidalArtistNames(a.Artists),
			URL:       a.URL,
			ArtistURL: tidalArtistLink(a.Artists),
		})
	}
	return out, nil
}

func (t *Tidal) LookupISRC(ctx context.Context, isrc string) ([]models.Candidate, error) {
	var page tidalPage[tidalTrack]
	if err := t.api.getJSON(ctx, "tracks", t.query("isrc", isrc), &page); err != nil {
		return nil, err
	}
	return tidalTrackCandidates(page.Items), nil
}

// CreatePlaylist ignores visibility: v1 playlists carry no visibility flag.
func (t *Tidal) CreatePlaylist(ctx context.Context, name, description string, _ models.Visibility) (string, error) {
	uid, err := t.currentUserID(ctx)
	if err != nil {
		return "", err
	}

	var created struct {
		UUID string `json:"uuid"`
	}
	form := url.Values{"title": {name}, "description": {description}}
	if err := t.api.postForm(ctx, "users/"+uid+"/playlists", t.query(), form, nil, &created); err != nil {
		return "", err
	}
	if created.UUID == "" {
		return "", fmt.Errorf("%w: tidal: playlist created without uuid", shared.ErrTransport)
	}
	return created.UUID, nil
}

// AddTracksToPlaylist appends in order. Writes must echo the playlist's current ETag.
func (t *Tidal) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	header, err := t.api.do(ctx, http.MethodGet, "playlists/"+playlistID, t.query(), nil, nil, nil)
	if err != nil {
		return err
	}

	form := url.Values{
		"trackIds": {strings.Join(trackIDs, ",")},
		"onDupes":  {"ADD"},
	}
	h := http.Header{}
	if etag := header.Get("ETag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	return t.api.postForm(ctx, "playlists/"+playlistID+"/items", t.query(), form, h, nil)
}

func (t *Tidal) SaveTracks(ctx context.Context, trackIDs []string) error {
	return t.favorite(ctx, "tracks", "trackIds", trackIDs)
}

func (t *Tidal) SaveAlbums(ctx context.Context, albumIDs []string) error {
	return t.favorite(ctx, "albums", "albumIds", albumIDs)
}

func (t *Tidal) favorite(ctx context.Context, kind, field string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	uid, err := t.currentUserID(ctx)
	if err != nil {
		return err
	}
	form := url.Values{field: {strings.Join(ids, ",")}}
	return t.api.postForm(ctx, "users/"+uid+"/favorites/"+kind, t.query(), form, nil, nil)
}

func (t *Tidal) ArtistURL(c models.Candidate) string {
	return c.ArtistURL
}

func (t *Tidal) SearchURL(query string) string {
	return tidalSearchURL + url.QueryEscape(query)
}

func (t *Tidal) currentUserID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.userID != "" {
		return t.userID, nil
	}

	var sess struct {
		UserID      int64  `json:"userId"`
		CountryCode string `json:"countryCode"`
	}
	if err := t.api.getJSON(ctx, "sessions", nil, &sess); err != nil {
		return "", err
	}
	if sess.UserID == 0 {
		return "", fmt.Errorf("%w: tidal session has no user", shared.ErrUnauthenticated)
	}

	t.userID = strconv.FormatInt(sess.UserID, 10)
	if sess.CountryCode != "" {
		t.country = sess.CountryCode
	}
	return t.userID, nil
}

func tidalTrackCandidates(tracks []tidalTrack) []models.Candidate {
	out := make([]models.Candidate, 0, len(tracks))
	for _, tr := range tracks {
		out = append(out, models.Candidate{
			ID:        strconv.FormatInt(tr.ID, 10),
			Title:     tr.Title,
			Artists:   tidalArtistNames(tr.Artists),
			Duration:  tr.Duration,
			ISRC:      tr.ISRC,
			URL:       tr.URL,
			ArtistURL: tidalArtistLink(tr.Artists),
		})
	}
	return out
}

func tidalArtistNames(artists []tidalArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

func tidalArtistLink(artists []tidalArtist) string {
	if len(artists) == 0 || artists[0].ID == 0 {
		return ""
	}
	return tidalArtistURL + strconv.FormatInt(artists[0].ID, 10)
}
