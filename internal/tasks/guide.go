package tasks

import (
	"context"
	"sort"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

const unknownArtist = "Unknown artist"

// guide handles destinations that can only be searched. Every item is matched and grouped by
// artist so the user can recreate the library by hand.
func (r *run) guide(ctx context.Context) error {
	job := r.sess.Job()
	linker, _ := r.dest.(services.Linker)
	b := newGuideBuilder(linker)

	tracks, err := r.matchAll(ctx, len(job.Tracks),
		func(ctx context.Context, i int) (models.MatchResult, error) {
			r.sess.SetCurrent(trackLabel(job.Tracks[i]))
			return r.e.matcher.MatchTrack(ctx, job.Tracks[i], r.dest)
		},
		func(i int, o outcome) { r.settleGuideItem(models.KindTrack, i, trackLabel(job.Tracks[i]), o) })
	if err != nil {
		return err
	}

	albums, err := r.matchAll(ctx, len(job.Albums),
		func(ctx context.Context, i int) (models.MatchResult, error) {
			r.sess.SetCurrent(job.Albums[i].Label())
			return r.e.matcher.MatchAlbum(ctx, job.Albums[i], r.dest)
		},
		func(i int, o outcome) { r.settleGuideItem(models.KindAlbum, i, job.Albums[i].Label(), o) })
	if err != nil {
		return err
	}

	lists := make([][]outcome, len(job.Playlists))
	for i, p := range job.Playlists {
		if r.stop(ctx) {
			break
		}
		r.sess.SetCurrent(p.Name)
		out, err := r.matchAll(ctx, len(p.Tracks), func(ctx context.Context, j int) (models.MatchResult, error) {
			return r.e.matcher.MatchTrack(ctx, p.Tracks[j], r.dest)
		}, nil)
		if err != nil {
			return err
		}
		lists[i] = out

		rep := models.PlaylistReport{Name: p.Name}
		for j, o := range out {
			if o.matched() {
				rep.Added++
				continue
			}
			why := "no match"
			switch {
			case !o.done:
				why = "cancelled"
			case o.err != nil:
				why = reason(o.err)
			}
			rec := models.FailureRecord{Kind: models.KindTrack, Label: trackLabel(p.Tracks[j]), Playlist: p.Name, Reason: why}
			rep.Missing = append(rep.Missing, rec)
			r.sess.AddFailure(rec)
		}
		r.setPlaylist(i, rep)
		r.advance(models.KindPlaylist, p.Name, true)
	}

	for i, t := range job.Tracks {
		b.add(t.PrimaryArtist(), tracks[i], t.Title)
	}
	for i, a := range job.Albums {
		b.add(a.PrimaryArtist(), albums[i], a.Title+" (album)")
	}
	for i, p := range job.Playlists {
		for j, t := range p.Tracks {
			if lists[i] != nil {
				b.add(t.PrimaryArtist(), lists[i][j], t.Title)
			}
		}
	}

	g := b.build(r.sess.ID(), r.dest.Name())
	r.sess.SetGuide(g)
	r.logger.Info("built migration guide", "artists", len(g.Artists))
	r.e.sendProgress(guideUpdate(r.sess.Snapshot(), len(g.Artists)))
	return nil
}

func (r *run) settleGuideItem(kind models.ItemKind, i int, label string, o outcome) {
	switch {
	case o.err != nil:
		r.fail(kind, i, label, reason(o.err))
		r.advance(kind, label, false)
	case !o.res.Matched():
		r.fail(kind, i, label, "no match")
		r.advance(kind, label, false)
	default:
		r.advance(kind, label, true)
	}
}

// guideBuilder groups items under the destination's spelling of the artist, falling back to the
// source artist for unmatched items.
type guideBuilder struct {
	linker  services.Linker
	entries map[string]*models.GuideEntry
	items   map[string]map[string]bool
}

func newGuideBuilder(linker services.Linker) *guideBuilder {
	return &guideBuilder{
		linker:  linker,
		entries: make(map[string]*models.GuideEntry),
		items:   make(map[string]map[string]bool),
	}
}

func (b *guideBuilder) add(sourceArtist string, o outcome, item string) {
	if !o.done || item == "" {
		return
	}

	artist := sourceArtist
	var c *models.Candidate
	if o.err == nil && o.res.Candidate != nil {
		c = o.res.Candidate
		if primary := c.PrimaryArtist(); primary != "" {
			artist = primary
		}
	}
	if artist == "" {
		artist = unknownArtist
	}

	key := shared.Normalize(artist)
	e, ok := b.entries[key]
	if !ok {
		e = &models.GuideEntry{Artist: artist, Items: []string{}}
		if b.linker != nil && artist != unknownArtist {
			e.SearchURL = b.linker.SearchURL(artist)
		}
		b.entries[key] = e
		b.items[key] = make(map[string]bool)
	}
	if e.ArtistURL == "" && c != nil && b.linker != nil {
		e.ArtistURL = b.linker.ArtistURL(*c)
	}

	if !b.items[key][item] {
		b.items[key][item] = true
		e.Items = append(e.Items, item)
	}
}

// build returns entries sorted by artist name.
func (b *guideBuilder) build(transferID, destination string) *models.Guide {
	g := &models.Guide{TransferID: transferID, Destination: destination, Artists: []models.GuideEntry{}}
	for _, e := range b.entries {
		g.Artists = append(g.Artists, *e)
	}
	sort.Slice(g.Artists, func(i, j int) bool {
		return strings.ToLower(g.Artists[i].Artist) < strings.ToLower(g.Artists[j].Artist)
	})
	return g
}
