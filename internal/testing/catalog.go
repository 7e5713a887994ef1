package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// Operation names accepted by [FakeCatalog.FailNext], [FakeCatalog.FailAlways] and [FakeCatalog.Calls].
const (
	OpSearchTracks = "search_tracks"
	OpSearchAlbums = "search_albums"
	OpLookupISRC   = "lookup_isrc"
	OpCreate       = "create_playlist"
	OpAdd          = "add_tracks"
	OpSaveTracks   = "save_tracks"
	OpSaveAlbums   = "save_albums"
)

// FakeCatalog is a scriptable destination implementing every optional capability.
//
// Search results are keyed by exact query string. Queued errors are returned one per call
// before the operation runs normally.
type FakeCatalog struct {
	mu sync.Mutex

	name     string
	tracks   map[string][]models.Candidate
	albums   map[string][]models.Candidate
	isrc     map[string][]models.Candidate
	queued   map[string][]error
	always   map[string]error
	rejected map[string]bool
	calls    map[string]int
	queries  []string
	delay    time.Duration

	nextID    int
	playlists map[string][]string
	names     map[string]string
	order     []string
	saved     map[string][]string
}

func NewFakeCatalog(name string) *FakeCatalog {
	return &FakeCatalog{
		name:      name,
		tracks:    make(map[string][]models.Candidate),
		albums:    make(map[string][]models.Candidate),
		isrc:      make(map[string][]models.Candidate),
		queued:    make(map[string][]error),
		always:    make(map[string]error),
		rejected:  make(map[string]bool),
		calls:     make(map[string]int),
		playlists: make(map[string][]string),
		names:     make(map[string]string),
		saved:     make(map[string][]string),
	}
}

// AddTrack registers track search results for query.
func (f *FakeCatalog) AddTrack(query string, c ...models.Candidate) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[query] = append(f.tracks[query], c...)
	return f
}

// AddAlbum registers album search results for query.
func (f *FakeCatalog) AddAlbum(query string, c ...models.Candidate) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albums[query] = append(f.albums[query], c...)
	return f
}

// AddISRC registers ISRC lookup results.
func (f *FakeCatalog) AddISRC(isrc string, c ...models.Candidate) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isrc[isrc] = append(f.isrc[isrc], c...)
	return f
}

// FailNext queues errs for the next calls of op.
func (f *FakeCatalog) FailNext(op string, errs ...error) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], errs...)
	return f
}

// FailAlways makes every call of op fail with err.
func (f *FakeCatalog) FailAlways(op string, err error) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[op] = err
	return f
}

// Reject makes any add batch containing id fail with [shared.ErrInvalidInput].
func (f *FakeCatalog) Reject(ids ...string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.rejected[id] = true
	}
	return f
}

// SetDelay makes every call sleep for d (or until ctx is done).
func (f *FakeCatalog) SetDelay(d time.Duration) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Calls returns how many times op was invoked.
func (f *FakeCatalog) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls sums calls over every operation.
func (f *FakeCatalog) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Queries lists search queries in call order.
func (f *FakeCatalog) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

// Playlist returns the ids added to a created playlist, in order.
func (f *FakeCatalog) Playlist(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.playlists[id])
}

// PlaylistByName finds a created playlist id by name.
func (f *FakeCatalog) PlaylistByName(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if f.names[id] == name {
			return id, true
		}
	}
	return "", false
}

// CreatedPlaylists returns created playlist ids in creation order.
func (f *FakeCatalog) CreatedPlaylists() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

// Saved returns ids saved through SaveTracks or SaveAlbums.
func (f *FakeCatalog) Saved(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.saved[op])
}

// begin records a call and returns the scripted error, if any.
func (f *FakeCatalog) begin(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	delay := f.delay
	var err error
	if q := f.queued[op]; len(q) > 0 {
		err, f.queued[op] = q[0], q[1:]
	} else if e, ok := f.always[op]; ok {
		err = e
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", shared.ErrTransport, ctx.Err())
		}
	}
	return err
}

func (f *FakeCatalog) Name() string { return f.name }

func (f *FakeCatalog) SearchTracks(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if err := f.begin(ctx, OpSearchTracks); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return head(f.tracks[query], limit), nil
}

func (f *FakeCatalog) SearchAlbums(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if err := f.begin(ctx, OpSearchAlbums); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return head(f.albums[query], limit), nil
}

func (f *FakeCatalog) LookupISRC(ctx context.Context, isrc string) ([]models.Candidate, error) {
	if err := f.begin(ctx, OpLookupISRC); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.isrc[isrc]), nil
}

func (f *FakeCatalog) CreatePlaylist(ctx context.Context, name, _ string, _ models.Visibility) (string, error) {
	if err := f.begin(ctx, OpCreate); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("pl-%d", f.nextID)
	f.playlists[id] = nil
	f.names[id] = name
	f.order = append(f.order, id)
	return id, nil
}

func (f *FakeCatalog) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := f.begin(ctx, OpAdd); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playlists[playlistID]; !ok {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	for _, id := range trackIDs {
		if f.rejected[id] {
			return fmt.Errorf("%w: track %s rejected", shared.ErrInvalidInput, id)
		}
	}
	f.playlists[playlistID] = append(f.playlists[playlistID], trackIDs...)
	return nil
}

func (f *FakeCatalog) SaveTracks(ctx context.Context, ids []string) error {
	return f.save(ctx, OpSaveTracks, ids)
}

func (f *FakeCatalog) SaveAlbums(ctx context.Context, ids []string) error {
	return f.save(ctx, OpSaveAlbums, ids)
}

func (f *FakeCatalog) save(ctx context.Context, op string, ids []string) error {
	if err := f.begin(ctx, op); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if f.rejected[id] {
			return fmt.Errorf("%w: %s rejected", shared.ErrInvalidInput, id)
		}
	}
	f.saved[op] = append(f.saved[op], ids...)
	return nil
}

func (f *FakeCatalog) ArtistURL(c models.Candidate) string {
	return c.ArtistURL
}

func (f *FakeCatalog) SearchURL(query string) string {
	return "https://" + f.name + ".example/search?q=" + query
}

// SearchOnlyCatalog exposes search and links only, so transfers run in guide mode.
type SearchOnlyCatalog struct {
	fake *FakeCatalog
}

func SearchOnly(f *FakeCatalog) *SearchOnlyCatalog {
	return &SearchOnlyCatalog{fake: f}
}

func (s *SearchOnlyCatalog) Name() string { return s.fake.Name() }

func (s *SearchOnlyCatalog) SearchTracks(ctx context.Context, q string, limit int) ([]models.Candidate, error) {
	return s.fake.SearchTracks(ctx, q, limit)
}

func (s *SearchOnlyCatalog) SearchAlbums(ctx context.Context, q string, limit int) ([]models.Candidate, error) {
	return s.fake.SearchAlbums(ctx, q, limit)
}

func (s *SearchOnlyCatalog) ArtistURL(c models.Candidate) string { return s.fake.ArtistURL(c) }
func (s *SearchOnlyCatalog) SearchURL(q string) string          { return s.fake.SearchURL(q) }

// PlaylistOnlyCatalog exposes search and playlist writes, without ISRC lookup or library saves.
type PlaylistOnlyCatalog struct {
	fake *FakeCatalog
}

func PlaylistOnly(f *FakeCatalog) *PlaylistOnlyCatalog {
	return &PlaylistOnlyCatalog{fake: f}
}

func (p *PlaylistOnlyCatalog) Name() string { return p.fake.Name() }

func (p *PlaylistOnlyCatalog) SearchTracks(ctx context.Context, q string, limit int) ([]models.Candidate, error) {
	return p.fake.SearchTracks(ctx, q, limit)
}

func (p *PlaylistOnlyCatalog) SearchAlbums(ctx context.Context, q string, limit int) ([]models.Candidate, error) {
	return p.fake.SearchAlbums(ctx, q, limit)
}

func (p *PlaylistOnlyCatalog) CreatePlaylist(ctx context.Context, name, desc string, v models.Visibility) (string, error) {
	return p.fake.CreatePlaylist(ctx, name, desc, v)
}

func (p *PlaylistOnlyCatalog) AddTracksToPlaylist(ctx context.Context, id string, ids []string) error {
	return p.fake.AddTracksToPlaylist(ctx, id, ids)
}

// FakeLibrary is an in-memory source library.
type FakeLibrary struct {
	Tracks    []models.Track
	Albums    []models.Album
	Lists     []models.Playlist
	ListItems map[string][]models.Track
	Err       error
}

func (l *FakeLibrary) Name() string { return "fake-source" }

func (l *FakeLibrary) SavedTracks(_ context.Context, offset, limit int) ([]models.Track, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return page(l.Tracks, offset, limit), nil
}

func (l *FakeLibrary) SavedAlbums(_ context.Context, offset, limit int) ([]models.Album, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return page(l.Albums, offset, limit), nil
}

func (l *FakeLibrary) Playlists(_ context.Context, offset, limit int) ([]models.Playlist, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return page(l.Lists, offset, limit), nil
}

func (l *FakeLibrary) PlaylistTracks(_ context.Context, id string, offset, limit int) ([]models.Track, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return page(l.ListItems[id], offset, limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	return slices.Clone(items[offset:min(offset+limit, len(items))])
}

func head(c []models.Candidate, limit int) []models.Candidate {
	if limit > 0 && len(c) > limit {
		c = c[:limit]
	}
	return slices.Clone(c)
}
