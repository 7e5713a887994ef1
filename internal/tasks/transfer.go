package tasks

import (
	"context"
	"sort"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"golang.org/x/sync/errgroup"
)

const defaultDescription = "Transferred with crate"

// transfer writes the job to a destination that accepts playlists. Standalone tracks, then
// albums, then playlists; items within a phase run concurrently.
func (r *run) transfer(ctx context.Context, w services.PlaylistWriter) error {
	job := r.sess.Job()
	lib, _ := r.dest.(services.LibraryWriter)

	var saveTracks, saveAlbums func(ctx context.Context, ids []string) error
	if lib != nil {
		saveTracks, saveAlbums = lib.SaveTracks, lib.SaveAlbums
	}

	err := r.standalone(ctx, models.KindTrack, len(job.Tracks),
		func(i int) string { return trackLabel(job.Tracks[i]) },
		func(ctx context.Context, i int) (models.MatchResult, error) {
			return r.e.matcher.MatchTrack(ctx, job.Tracks[i], r.dest)
		},
		saveTracks)
	if err != nil {
		return err
	}

	err = r.standalone(ctx, models.KindAlbum, len(job.Albums),
		func(i int) string { return job.Albums[i].Label() },
		func(ctx context.Context, i int) (models.MatchResult, error) {
			return r.e.matcher.MatchAlbum(ctx, job.Albums[i], r.dest)
		},
		saveAlbums)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.opts.Concurrency)
	for i, p := range job.Playlists {
		if r.stop(gctx) {
			break
		}
		g.Go(func() error { return r.playlist(gctx, w, i, p) })
	}
	return g.Wait()
}

// standalone matches n tracks or albums and, when save is set, saves the matches to the
// destination library in batches. An item counts as succeeded once it is saved, or once it is
// matched when the destination has no library.
func (r *run) standalone(
	ctx context.Context,
	kind models.ItemKind,
	n int,
	labelOf func(i int) string,
	match func(ctx context.Context, i int) (models.MatchResult, error),
	save func(ctx context.Context, ids []string) error,
) error {
	if n == 0 {
		return nil
	}

	out, err := r.matchAll(ctx, n,
		func(ctx context.Context, i int) (models.MatchResult, error) {
			r.sess.SetCurrent(labelOf(i))
			return match(ctx, i)
		},
		func(i int, o outcome) {
			label := labelOf(i)
			switch {
			case o.err != nil:
				r.fail(kind, i, label, reason(o.err))
				r.advance(kind, label, false)
			case !o.res.Matched():
				r.fail(kind, i, label, "no match")
				r.advance(kind, label, false)
			case save == nil:
				r.advance(kind, label, true)
			}
		})
	if err != nil || save == nil {
		return err
	}

	var positions []int
	var ids []string
	for i, o := range out {
		if o.matched() {
			positions = append(positions, i)
			ids = append(ids, o.res.DestinationID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	r.e.sendProgress(saveLibraryUpdate(r.sess.Snapshot(), kind.String()+"s", len(ids)))
	failed, err := r.batched(ctx, "save_"+kind.String()+"s", ids, save)
	if err != nil {
		return err
	}

	for j, i := range positions {
		label := labelOf(i)
		if ferr, ok := failed[j]; ok {
			r.fail(kind, i, label, "save failed: "+reason(ferr))
			r.advance(kind, label, false)
			continue
		}
		r.advance(kind, label, true)
	}
	return nil
}

// playlist recreates one playlist. Failing to create it is recorded in the report and does not
// stop the job; tracks that cannot be matched or added are listed as missing.
func (r *run) playlist(ctx context.Context, w services.PlaylistWriter, index int, p models.Playlist) error {
	rep := models.PlaylistReport{Name: p.Name}
	r.sess.SetCurrent(p.Name)
	r.e.sendProgress(createPlaylistUpdate(r.sess.Snapshot(), p.Name))

	desc := p.Description
	if desc == "" {
		desc = defaultDescription
	}

	var playlistID string
	err := r.call(ctx, "create_playlist", func(ctx context.Context) error {
		var err error
		playlistID, err = w.CreatePlaylist(ctx, p.Name, desc, r.sess.Job().Visibility)
		return err
	})
	if stop := r.settle(err); stop != nil {
		return stop
	}
	if err != nil {
		r.logger.Warn("failed to create playlist", "playlist", p.Name, "error", err)
		rep.Failed = true
		rep.Reason = reason(err)
		r.setPlaylist(index, rep)
		r.sess.AddFailure(models.FailureRecord{Kind: models.KindPlaylist, Label: p.Name, Reason: rep.Reason})
		r.advance(models.KindPlaylist, p.Name, false)
		return nil
	}
	rep.DestinationID = playlistID

	out, err := r.matchAll(ctx, len(p.Tracks), func(ctx context.Context, i int) (models.MatchResult, error) {
		return r.e.matcher.MatchTrack(ctx, p.Tracks[i], r.dest)
	}, nil)
	if err != nil {
		return err
	}

	type miss struct {
		pos int
		rec models.FailureRecord
	}
	var missing []miss
	addMissing := func(pos int, why string) {
		missing = append(missing, miss{pos, models.FailureRecord{
			Kind:     models.KindTrack,
			Label:    trackLabel(p.Tracks[pos]),
			Playlist: p.Name,
			Reason:   why,
		}})
	}

	var positions []int
	var ids []string
	seen := make(map[string]bool)
	for i, o := range out {
		switch {
		case !o.done:
			addMissing(i, "cancelled")
		case o.err != nil:
			addMissing(i, reason(o.err))
		case !o.res.Matched():
			addMissing(i, "no match")
		case r.e.opts.SkipDuplicates && seen[o.res.DestinationID]:
			r.logger.Debug("skipping duplicate", "playlist", p.Name, "track", o.res.Label)
		default:
			seen[o.res.DestinationID] = true
			positions = append(positions, i)
			ids = append(ids, o.res.DestinationID)
		}
	}

	failed, err := r.batched(ctx, "add_tracks", ids, func(ctx context.Context, chunk []string) error {
		return w.AddTracksToPlaylist(ctx, playlistID, chunk)
	})
	if err != nil {
		return err
	}
	for j, ferr := range failed {
		addMissing(positions[j], "add failed: "+reason(ferr))
	}
	sort.Slice(missing, func(a, b int) bool { return missing[a].pos < missing[b].pos })

	rep.Added = len(ids) - len(failed)
	for _, m := range missing {
		rep.Missing = append(rep.Missing, m.rec)
		r.sess.AddFailure(m.rec)
	}
	r.setPlaylist(index, rep)

	r.logger.Info("playlist transferred", "playlist", p.Name, "added", rep.Added, "missing", len(rep.Missing))
	r.e.sendProgress(addTracksUpdate(r.sess.Snapshot(), p.Name, rep.Added, len(ids)))
	r.advance(models.KindPlaylist, p.Name, true)
	return nil
}
