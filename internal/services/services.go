package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// Catalog is the minimum a destination exposes: ranked free-text search.
type Catalog interface {
	// Name returns the registry key of the service (e.g. "spotify").
	Name() string

	// SearchTracks returns at most limit candidates in the service's relevance order.
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error)

	// SearchAlbums is SearchTracks scoped to albums.
	SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error)
}

// ISRCLookup resolves a recording code to catalog tracks.
type ISRCLookup interface {
	LookupISRC(ctx context.Context, isrc string) ([]models.Candidate, error)
}

// PlaylistWriter creates and populates playlists. Destinations without it run in guide mode.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name, description string, visibility models.Visibility) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// LibraryWriter saves standalone tracks and albums to the user's library (likes/favorites).
type LibraryWriter interface {
	SaveTracks(ctx context.Context, trackIDs []string) error
	SaveAlbums(ctx context.Context, albumIDs []string) error
}

// Linker builds browser links used by migration guides.
type Linker interface {
	// ArtistURL returns the artist page for a candidate, or "" when unknown.
	ArtistURL(c models.Candidate) string
	// SearchURL returns a free-text search link.
	SearchURL(query string) string
}

// Library reads one page of the user's saved items from a source catalog.
type Library interface {
	Name() string
	SavedTracks(ctx context.Context, offset, limit int) ([]models.Track, error)
	SavedAlbums(ctx context.Context, offset, limit int) ([]models.Album, error)
	Playlists(ctx context.Context, offset, limit int) ([]models.Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string, offset, limit int) ([]models.Track, error)
}

// PageFunc fetches the page starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// CollectAll fetches fixed-size pages until a short page signals the end of the list.
func CollectAll[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", shared.ErrInvalidArgument)
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < pageSize {
			return all, nil
		}
	}
}

// ResolvePlaylist loads every track of p from lib.
func ResolvePlaylist(ctx context.Context, lib Library, p models.Playlist, pageSize int) (models.Playlist, error) {
	tracks, err := CollectAll(ctx, pageSize, func(ctx context.Context, offset, limit int) ([]models.Track, error) {
		return lib.PlaylistTracks(ctx, p.ID, offset, limit)
	})
	if err != nil {
		return p, fmt.Errorf("failed to load tracks for playlist %q: %w", p.Name, err)
	}
	return p.WithTracks(tracks), nil
}

// CapabilitySet reports which optional interfaces a catalog implements.
type CapabilitySet struct {
	ISRC      bool
	Playlists bool
	Library   bool
	Links     bool
}

func Capabilities(c Catalog) CapabilitySet {
	_, isrc := c.(ISRCLookup)
	_, playlists := c.(PlaylistWriter)
	_, library := c.(LibraryWriter)
	_, links := c.(Linker)
	return CapabilitySet{ISRC: isrc, Playlists: playlists, Library: library, Links: links}
}

// GuideOnly reports whether transfers to this catalog produce a migration guide.
func (c CapabilitySet) GuideOnly() bool {
	return !c.Playlists
}

func (c CapabilitySet) String() string {
	parts := []string{"search"}
	if c.ISRC {
		parts = append(parts, "isrc")
	}
	if c.Playlists {
		parts = append(parts, "playlists")
	}
	if c.Library {
		parts = append(parts, "library")
	}
	if c.Links {
		parts = append(parts, "links")
	}
	return strings.Join(parts, ",")
}

// Registry maps destination names to catalogs.
type Registry struct {
	catalogs map[string]Catalog
}

func NewRegistry(catalogs ...Catalog) *Registry {
	r := &Registry{catalogs: make(map[string]Catalog)}
	for _, c := range catalogs {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Catalog) {
	r.catalogs[strings.ToLower(c.Name())] = c
}

func (r *Registry) Get(name string) (Catalog, error) {
	c, ok := r.catalogs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", shared.ErrUnknownDestination, name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// Names lists registered catalogs in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.catalogs))
	for name := range r.catalogs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
