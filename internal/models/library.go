package models

import "strings"

// Track is a single recording as seen by one catalog.
type Track struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Artists  []string `json:"artists" yaml:"artists"`
	AlbumID  string   `json:"album_id,omitempty" yaml:"album_id,omitempty"`
	Album    string   `json:"album,omitempty" yaml:"album,omitempty"`
	Duration int      `json:"duration" yaml:"duration"` // seconds
	ISRC     string   `json:"isrc,omitempty" yaml:"isrc,omitempty"`
}

// PrimaryArtist returns the first credited artist or an empty string.
func (t Track) PrimaryArtist() string {
	return first(t.Artists)
}

// Label renders the track as "Artist - Title" for progress lines and reports.
func (t Track) Label() string {
	return label(t.Artists, t.Title)
}

// Album is a release as seen by one catalog.
type Album struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Artists     []string `json:"artists" yaml:"artists"`
	TrackCount  int      `json:"track_count" yaml:"track_count"`
	ReleaseDate string   `json:"release_date,omitempty" yaml:"release_date,omitempty"`
}

func (a Album) PrimaryArtist() string {
	return first(a.Artists)
}

func (a Album) Label() string {
	return label(a.Artists, a.Title)
}

// Playlist is an ordered list of tracks.
//
// Owner and Public are descriptive only. Tracks is meaningful only when TracksLoaded is set.
type Playlist struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	Owner        string  `json:"owner,omitempty" yaml:"owner,omitempty"`
	Public       bool    `json:"public" yaml:"public"`
	TrackCount   int     `json:"track_count" yaml:"track_count"`
	Tracks       []Track `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	TracksLoaded bool    `json:"-" yaml:"-"`
}

// WithTracks returns a copy of p with its track list resolved.
func (p Playlist) WithTracks(tracks []Track) Playlist {
	p.Tracks = append([]Track(nil), tracks...)
	p.TrackCount = len(tracks)
	p.TracksLoaded = true
	return p
}

// Candidate is one search hit in a destination catalog.
type Candidate struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	Duration  int      `json:"duration,omitempty"`
	ISRC      string   `json:"isrc,omitempty"`
	URL       string   `json:"url,omitempty"`
	ArtistURL string   `json:"artist_url,omitempty"`
}

func (c Candidate) PrimaryArtist() string {
	return first(c.Artists)
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func label(artists []string, title string) string {
	if len(artists) == 0 {
		return title
	}
	return strings.Join(artists, ", ") + " - " + title
}
