// Apple Music implementation of [Catalog] and [Linker]
//
// Apple Music has no public write API for personal libraries without a MusicKit developer token,
// so this catalog only searches the iTunes Search API and transfers to it produce a guide.
package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
)

const (
	AppleMusicName = "applemusic"

	defaultITunesBaseURL = "https://itunes.apple.com"
)

type itunesResult struct {
	WrapperType       string `json:"wrapperType"`
	TrackID           int64  `json:"trackId"`
	TrackName         string `json:"trackName"`
	CollectionID      int64  `json:"collectionId"`
	CollectionName    string `json:"collectionName"`
	ArtistName        string `json:"artistName"`
	ArtistViewURL     string `json:"artistViewUrl"`
	TrackViewURL      string `json:"trackViewUrl"`
	CollectionViewURL string `json:"collectionViewUrl"`
	TrackTimeMillis   int    `json:"trackTimeMillis"`
}

type itunesResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []itunesResult `json:"results"`
}

// AppleMusic is a search-only destination.
type AppleMusic struct {
	api        *apiClient
	storefront string
}

func NewAppleMusic(client *http.Client, baseURL, storefront string) *AppleMusic {
	if baseURL == "" {
		baseURL = defaultITunesBaseURL
	}
	if storefront == "" {
		storefront = "us"
	}
	return &AppleMusic{api: newAPIClient(AppleMusicName, baseURL, client), storefront: strings.ToLower(storefront)}
}

func (a *AppleMusic) Name() string {
	return AppleMusicName
}

func (a *AppleMusic) SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	results, err := a.search(ctx, query, "song", limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, models.Candidate{
			ID:        strconv.FormatInt(r.TrackID, 10),
			Title:     r.TrackName,
			Artists:   splitArtistCredit(r.ArtistName),
			Duration:  r.TrackTimeMillis / 1000,
			URL:       r.TrackViewURL,
			ArtistURL: r.ArtistViewURL,
		})
	}
	return out, nil
}

func (a *AppleMusic) SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	results, err := a.search(ctx, query, "album", limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, models.Candidate{
			ID:        strconv.FormatInt(r.CollectionID, 10),
			Title:     r.CollectionName,
			Artists:   splitArtistCredit(r.ArtistName),
			URL:       r.CollectionViewURL,
			ArtistURL: r.ArtistViewURL,
		})
	}
	return out, nil
}

// ArtistURL falls back to an artist search when the result carried no artist page.
func (a *AppleMusic) ArtistURL(c models.Candidate) string {
	if c.ArtistURL != "" {
		return c.ArtistURL
	}
	if artist := c.PrimaryArtist(); artist != "" {
		return a.SearchURL(artist)
	}
	return ""
}

func (a *AppleMusic) SearchURL(query string) string {
	return "https://music.apple.com/" + a.storefront + "/search?term=" + url.QueryEscape(query)
}

func (a *AppleMusic) search(ctx context.Context, term, entity string, limit int) ([]itunesResult, error) {
	q := url.Values{
		"term":    {term},
		"media":   {"music"},
		"entity":  {entity},
		"limit":   {strconv.Itoa(limit)},
		"country": {a.storefront},
	}

	var resp itunesResponse
	if err := a.api.getJSON(ctx, "search", q, &resp); err != nil {
		return nil, err
	}
	return limitSlice(resp.Results, limit), nil
}

// splitArtistCredit turns "A & B" or "A, B" credits into an ordered artist list.
func splitArtistCredit(credit string) []string {
	credit = strings.ReplaceAll(credit, " & ", ", ")
	var out []string
	for part := range strings.SplitSeq(credit, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
