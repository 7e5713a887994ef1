package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyJob       = errors.New("transfer job selects no items")
	ErrMissingDest    = errors.New("transfer job has no destination")
	ErrUnresolvedList = errors.New("playlist tracks not resolved")
)

// Visibility of playlists created on the destination.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
)

func (v Visibility) String() string {
	if v == VisibilityPublic {
		return "public"
	}
	return "private"
}

// TransferJob is the immutable description of one transfer.
//
// Playlists must carry resolved track lists before the job starts.
type TransferJob struct {
	ID          string     `json:"id"`
	Destination string     `json:"destination"`
	Tracks      []Track    `json:"tracks,omitempty"`
	Albums      []Album    `json:"albums,omitempty"`
	Playlists   []Playlist `json:"playlists,omitempty"`
	Visibility  Visibility `json:"visibility"`
}

// TotalItems counts user-selected items. A playlist counts once regardless of its length.
func (j TransferJob) TotalItems() int {
	return len(j.Tracks) + len(j.Albums) + len(j.Playlists)
}

// Validate reports [ErrEmptyJob] for an empty selection; callers map it to the shared taxonomy.
func (j TransferJob) Validate() error {
	if j.TotalItems() == 0 {
		return ErrEmptyJob
	}
	if j.Destination == "" {
		return ErrMissingDest
	}
	for _, p := range j.Playlists {
		if !p.TracksLoaded && len(p.Tracks) == 0 && p.TrackCount > 0 {
			return fmt.Errorf("%w: %s", ErrUnresolvedList, p.Name)
		}
	}
	return nil
}

// FailureRecord describes one item that did not make it to the destination.
type FailureRecord struct {
	Kind     ItemKind `json:"kind" yaml:"kind"`
	Label    string   `json:"label" yaml:"label"`
	Playlist string   `json:"playlist,omitempty" yaml:"playlist,omitempty"`
	Reason   string   `json:"reason" yaml:"reason"`
}

// PlaylistReport is the per-playlist section of a [Report].
type PlaylistReport struct {
	Name          string          `json:"name" yaml:"name"`
	DestinationID string          `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`
	Added         int             `json:"added" yaml:"added"`
	Failed        bool            `json:"failed" yaml:"failed"`
	Reason        string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Missing       []FailureRecord `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Report summarizes a finished transfer. Items absent from every list succeeded.
type Report struct {
	TransferID  string           `json:"transfer_id" yaml:"transfer_id"`
	Destination string           `json:"destination" yaml:"destination"`
	Succeeded   int              `json:"succeeded" yaml:"succeeded"`
	Total       int              `json:"total" yaml:"total"`
	Tracks      []FailureRecord  `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Albums      []FailureRecord  `json:"albums,omitempty" yaml:"albums,omitempty"`
	Playlists   []PlaylistReport `json:"playlists,omitempty" yaml:"playlists,omitempty"`
}

// Unmatched counts every failure record in the report, playlist tracks included.
func (r *Report) Unmatched() int {
	n := len(r.Tracks) + len(r.Albums)
	for _, p := range r.Playlists {
		n += len(p.Missing)
		if p.Failed {
			n++
		}
	}
	return n
}

// GuideEntry points the user at one artist on a destination without write access.
type GuideEntry struct {
	Artist    string   `json:"artist" yaml:"artist"`
	ArtistURL string   `json:"artist_url,omitempty" yaml:"artist_url,omitempty"`
	SearchURL string   `json:"search_url,omitempty" yaml:"search_url,omitempty"`
	Items     []string `json:"items" yaml:"items"`
}

// Guide is the output of a transfer to a search-only destination.
type Guide struct {
	TransferID  string       `json:"transfer_id" yaml:"transfer_id"`
	Destination string       `json:"destination" yaml:"destination"`
	Artists     []GuideEntry `json:"artists" yaml:"artists"`
}
