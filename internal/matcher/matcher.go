package matcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 10
)

// Gate wraps every outbound catalog call, e.g. to apply rate limits and per-call timeouts.
type Gate func(ctx context.Context, call func(ctx context.Context) error) error

func passthrough(ctx context.Context, call func(ctx context.Context) error) error {
	return call(ctx)
}

// Matcher finds destination counterparts for source items.
type Matcher struct {
	limit      int
	allArtists bool
	cache      Cache
	failures   FailureCache
	gate       Gate
	now        func() time.Time
	logger     *log.Logger
}

type Option func(*Matcher)

// WithSearchLimit sets N for top-N searches, clamped to [1, MaxSearchLimit].
func WithSearchLimit(n int) Option {
	return func(m *Matcher) { m.limit = ClampLimit(n) }
}

// WithAllArtists enables retrying empty searches with the item's other artists.
func WithAllArtists(enabled bool) Option {
	return func(m *Matcher) { m.allArtists = enabled }
}

func WithCache(c Cache) Option {
	return func(m *Matcher) { m.cache = c }
}

func WithFailureCache(f FailureCache) Option {
	return func(m *Matcher) { m.failures = f }
}

func WithGate(g Gate) Option {
	return func(m *Matcher) { m.gate = g }
}

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

func New(opts ...Option) *Matcher {
	m := &Matcher{
		limit:      DefaultSearchLimit,
		allArtists: true,
		gate:       passthrough,
		now:        time.Now,
		logger:     shared.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClampLimit maps non-positive values to the default and caps the rest.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultSearchLimit
	case n > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return n
	}
}

// SearchLimit reports the configured N.
func (m *Matcher) SearchLimit() int {
	return m.limit
}

// MatchTrack finds the destination counterpart of t.
func (m *Matcher) MatchTrack(ctx context.Context, t models.Track, dest services.Catalog) (models.MatchResult, error) {
	label := t.Label()
	key := Key{Destination: dest.Name(), Kind: models.KindTrack, SourceID: t.ID}

	if strings.TrimSpace(t.Title) == "" {
		return models.NoMatch(models.KindTrack, t.ID, label), nil
	}
	if res, ok := m.fromCache(ctx, key, label); ok {
		return res, nil
	}

	if t.ISRC != "" {
		if lookup, ok := dest.(services.ISRCLookup); ok {
			var found []models.Candidate
			err := m.gate(ctx, func(ctx context.Context) error {
				var err error
				found, err = lookup.LookupISRC(ctx, t.ISRC)
				return err
			})
			switch {
			case err != nil && fatal(err):
				return models.MatchResult{}, err
			case err != nil:
				m.logger.Debug("isrc lookup failed, falling back to search", "isrc", t.ISRC, "error", err)
			case len(found) > 0:
				res := models.NewMatch(models.KindTrack, t.ID, label, found[0], models.ConfidenceISRC)
				m.remember(ctx, key, res)
				return res, nil
			}
		}
	}

	queries := searchQueries(t.Title, t.Artists, m.allArtists)
	candidates, err := m.search(ctx, queries, dest.SearchTracks)
	if err != nil {
		return models.MatchResult{}, err
	}

	res := classify(models.KindTrack, t.ID, label, t.Title, t.Artists, t.Duration, candidates)
	m.remember(ctx, key, res)
	return res, nil
}

// MatchAlbum finds the destination counterpart of a.
func (m *Matcher) MatchAlbum(ctx context.Context, a models.Album, dest services.Catalog) (models.MatchResult, error) {
	label := a.Label()
	key := Key{Destination: dest.Name(), Kind: models.KindAlbum, SourceID: a.ID}

	if strings.TrimSpace(a.Title) == "" {
		return models.NoMatch(models.KindAlbum, a.ID, label), nil
	}
	if res, ok := m.fromCache(ctx, key, label); ok {
		return res, nil
	}

	queries := searchQueries(a.Title, a.Artists, m.allArtists)
	candidates, err := m.search(ctx, queries, dest.SearchAlbums)
	if err != nil {
		return models.MatchResult{}, err
	}

	res := classify(models.KindAlbum, a.ID, label, a.Title, a.Artists, 0, candidates)
	m.remember(ctx, key, res)
	return res, nil
}

type searchFunc func(ctx context.Context, query string, limit int) ([]models.Candidate, error)

// search runs queries in order and stops at the first that returns candidates.
func (m *Matcher) search(ctx context.Context, queries []string, fn searchFunc) ([]models.Candidate, error) {
	for i, q := range queries {
		var found []models.Candidate
		err := m.gate(ctx, func(ctx context.Context) error {
			var err error
			found, err = fn(ctx, q, m.limit)
			return err
		})
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			m.logger.Debug("search failed, treating as no result", "query", q, "error", err)
			continue
		}

		if i > 0 && len(found) > 0 {
			m.logger.Debug("matched on secondary artist", "query", q)
		}
		if len(found) > 0 {
			if len(found) > m.limit {
				found = found[:m.limit]
			}
			return found, nil
		}
	}
	return nil, nil
}

func (m *Matcher) fromCache(ctx context.Context, key Key, label string) (models.MatchResult, bool) {
	if key.SourceID == "" {
		return models.MatchResult{}, false
	}

	if m.cache != nil {
		entry, ok, err := m.cache.Lookup(ctx, key)
		if err != nil {
			m.logger.Warn("match cache lookup failed", "key", key.SourceID, "error", err)
		} else if ok {
			res := models.MatchResult{
				Kind:          key.Kind,
				SourceID:      key.SourceID,
				Label:         label,
				DestinationID: entry.DestinationID,
				Confidence:    entry.Confidence,
				Cached:        true,
			}
			return res, true
		}
	}

	if m.failures != nil {
		skip, err := m.failures.ShouldSkip(ctx, key, m.now())
		if err != nil {
			m.logger.Warn("failure cache lookup failed", "key", key.SourceID, "error", err)
		} else if skip {
			res := models.NoMatch(key.Kind, key.SourceID, label)
			res.Cached = true
			return res, true
		}
	}

	return models.MatchResult{}, false
}

func (m *Matcher) remember(ctx context.Context, key Key, res models.MatchResult) {
	if key.SourceID == "" {
		return
	}

	if res.Matched() {
		if m.cache != nil {
			entry := Entry{DestinationID: res.DestinationID, Confidence: res.Confidence}
			if err := m.cache.Store(ctx, key, entry); err != nil {
				m.logger.Warn("failed to cache match", "key", key.SourceID, "error", err)
			}
		}
		if m.failures != nil {
			if err := m.failures.ClearFailure(ctx, key); err != nil {
				m.logger.Warn("failed to clear match failure", "key", key.SourceID, "error", err)
			}
		}
		return
	}

	if m.failures != nil {
		if err := m.failures.RecordFailure(ctx, key, "no candidates", m.now()); err != nil {
			m.logger.Warn("failed to record match failure", "key", key.SourceID, "error", err)
		}
	}
}

// searchQueries builds "TITLE PRIMARY_ARTIST" followed, optionally, by the simplified title with
// each further artist.
func searchQueries(title string, artists []string, allArtists bool) []string {
	primary := ""
	if len(artists) > 0 {
		primary = artists[0]
	}
	queries := []string{strings.TrimSpace(title + " " + primary)}

	if allArtists && len(artists) > 1 {
		simple := shared.Simplify(title)
		for _, artist := range artists[1:] {
			if artist = strings.TrimSpace(artist); artist != "" {
				queries = append(queries, simple+" "+artist)
			}
		}
	}
	return queries
}

func classify(kind models.ItemKind, sourceID, label, title string, artists []string, duration int, candidates []models.Candidate) models.MatchResult {
	if len(candidates) == 0 {
		return models.NoMatch(kind, sourceID, label)
	}

	if i := exactIndex(title, artists, duration, candidates); i >= 0 {
		return models.NewMatch(kind, sourceID, label, candidates[i], models.ConfidenceExact)
	}
	return models.NewMatch(kind, sourceID, label, candidates[0], models.ConfidenceFuzzy)
}

// exactIndex returns the best exact candidate or -1. Candidates credited to the source's primary
// artist are preferred; only when none exist does a candidate led by any other source artist count.
// Within a tier the closest known duration wins, otherwise relevance order decides.
func exactIndex(title string, artists []string, duration int, candidates []models.Candidate) int {
	wantTitle := shared.Normalize(title)
	primary := ""
	others := make(map[string]bool, len(artists))
	for i, a := range artists {
		n := shared.Normalize(a)
		if n == "" {
			continue
		}
		if i == 0 {
			primary = n
		}
		others[n] = true
	}

	if primary != "" {
		if i := closest(candidates, duration, func(c models.Candidate) bool {
			return shared.Normalize(c.Title) == wantTitle && shared.Normalize(c.PrimaryArtist()) == primary
		}); i >= 0 {
			return i
		}
	}
	return closest(candidates, duration, func(c models.Candidate) bool {
		return shared.Normalize(c.Title) == wantTitle && others[shared.Normalize(c.PrimaryArtist())]
	})
}

// closest returns the accepted candidate nearest to duration, or the first accepted one when
// durations are unknown.
func closest(candidates []models.Candidate, duration int, accept func(models.Candidate) bool) int {
	best, bestDiff := -1, -1
	for i, c := range candidates {
		if !accept(c) {
			continue
		}
		if best == -1 {
			best = i
			if duration > 0 && c.Duration > 0 {
				bestDiff = abs(c.Duration - duration)
			}
			continue
		}
		if duration > 0 && c.Duration > 0 {
			if d := abs(c.Duration - duration); bestDiff == -1 || d < bestDiff {
				best, bestDiff = i, d
			}
		}
	}
	return best
}

// fatal reports errors that must reach the orchestrator instead of becoming a none result.
func fatal(err error) bool {
	return errors.Is(err, shared.ErrUnauthenticated) ||
		errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrTransport) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
