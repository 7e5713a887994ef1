package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/matcher"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Recorder archives finished transfers.
type Recorder interface {
	Record(ctx context.Context, snap session.Snapshot, report *models.Report) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine executes transfer jobs. One engine may run several jobs; the concurrency bound and the
// rate limiter are shared between them.
type Engine struct {
	opts        Options
	matcher     *matcher.Matcher
	matcherOpts []matcher.Option
	logger      *log.Logger
	recorder    Recorder
	progress    chan<- ProgressUpdate
	sleep       SleepFunc
	limiter     *rate.Limiter
	sem         *semaphore.Weighted
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithProgress sets the channel receiving [ProgressUpdate] values. Sends never block.
func WithProgress(ch chan<- ProgressUpdate) Option {
	return func(e *Engine) { e.progress = ch }
}

// WithSleep replaces the backoff sleep, e.g. with a no-op in tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithMatchCache plugs persistent match and failure caches into the matcher. Either may be nil.
func WithMatchCache(c matcher.Cache, f matcher.FailureCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.matcherOpts = append(e.matcherOpts, matcher.WithCache(c))
		}
		if f != nil {
			e.matcherOpts = append(e.matcherOpts, matcher.WithFailureCache(f))
		}
	}
}

// WithMatcherOptions passes extra options to the matcher.
func WithMatcherOptions(opts ...matcher.Option) Option {
	return func(e *Engine) { e.matcherOpts = append(e.matcherOpts, opts...) }
}

// NewEngine creates an engine. Every outbound call made on its behalf, matcher searches included,
// passes through the engine's gate.
func NewEngine(opts Options, options ...Option) *Engine {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	e := &Engine{
		opts:    opts,
		logger:  shared.NewLogger(nil),
		sleep:   sleepContext,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
	}
	for _, opt := range options {
		opt(e)
	}

	mopts := []matcher.Option{
		matcher.WithSearchLimit(opts.SearchLimit),
		matcher.WithAllArtists(opts.SearchAllArtists),
		matcher.WithLogger(e.logger),
	}
	mopts = append(mopts, e.matcherOpts...)
	mopts = append(mopts, matcher.WithGate(e.gate))
	e.matcher = matcher.New(mopts...)
	return e
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Matcher() *matcher.Matcher {
	return e.matcher
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(update ProgressUpdate) {
	if e.progress == nil {
		return
	}
	select {
	case e.progress <- update:
	default:
	}
}

// Launch validates job, registers a session under key and runs it in the background.
//
// An empty selection returns [shared.ErrEmptySelection] before a session exists or any request is
// made. The background run is detached from ctx; use [session.Session.Cancel] to stop it.
func (e *Engine) Launch(ctx context.Context, mgr *session.Manager, job models.TransferJob, dest services.Catalog, key string) (*session.Session, error) {
	if err := validate(job); err != nil {
		return nil, err
	}

	sess, err := mgr.Create(job, key)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = e.Run(context.WithoutCancel(ctx), sess, dest)
	}()
	return sess, nil
}

// Run executes the session's job against dest and blocks until the session is terminal.
//
// The returned error is the failure cause, or nil when the job ran to completion. Unmatched items
// do not fail a job; they are listed in the session's report.
func (e *Engine) Run(ctx context.Context, sess *session.Session, dest services.Catalog) error {
	job := sess.Job()
	logger := shared.WithLogger(e.logger, "transfer_id", sess.ID(), "destination", dest.Name())

	if err := validate(job); err != nil {
		logger.Warn("rejected transfer", "error", err)
		_ = sess.Fail(err, nil)
		e.record(ctx, logger, sess, nil)
		return err
	}
	if err := sess.Start(job.TotalItems()); err != nil {
		return err
	}

	caps := services.Capabilities(dest)
	logger.Info("transfer started",
		"tracks", len(job.Tracks), "albums", len(job.Albums), "playlists", len(job.Playlists),
		"capabilities", caps.String())

	r := newRun(e, sess, dest, logger)

	var err error
	if w, ok := dest.(services.PlaylistWriter); ok {
		err = r.transfer(ctx, w)
	} else {
		err = r.guide(ctx)
	}

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		err = fmt.Errorf("%w: %v", shared.ErrCancelled, err)
	case err == nil && (r.skipped.Load() || ctx.Err() != nil):
		snap := sess.Snapshot()
		err = fmt.Errorf("%w: %d of %d items processed", shared.ErrCancelled, snap.Completed, snap.Total)
	}

	report := r.report()
	if err != nil {
		logger.Error("transfer failed", "error", err, "unmatched", report.Unmatched())
		_ = sess.Fail(err, report)
	} else {
		_ = sess.Complete(report)
		logger.Info("transfer completed", "succeeded", report.Succeeded, "total", report.Total, "unmatched", report.Unmatched())
	}

	e.sendProgress(finishedUpdate(sess.Snapshot()))
	e.record(ctx, logger, sess, report)
	return err
}

func (e *Engine) record(ctx context.Context, logger *log.Logger, sess *session.Session, report *models.Report) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), sess.Snapshot(), report); err != nil {
		logger.Warn("failed to record transfer", "error", err)
	}
}

// validate maps job validation onto the shared taxonomy.
func validate(job models.TransferJob) error {
	err := job.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrEmptyJob):
		return fmt.Errorf("%w: no tracks, albums or playlists selected", shared.ErrEmptySelection)
	default:
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
}

// run is the state of one job execution.
type run struct {
	e      *Engine
	sess   *session.Session
	dest   services.Catalog
	logger *log.Logger

	// units counts individual match attempts: standalone items plus every playlist track
	units           int
	rateLimited     atomic.Int64
	transportStreak atomic.Int64
	skipped         atomic.Bool

	mu        sync.Mutex
	tracks    []*models.FailureRecord
	albums    []*models.FailureRecord
	playlists []*models.PlaylistReport
}

func newRun(e *Engine, sess *session.Session, dest services.Catalog, logger *log.Logger) *run {
	job := sess.Job()
	units := len(job.Tracks) + len(job.Albums)
	for _, p := range job.Playlists {
		units += len(p.Tracks)
	}
	return &run{
		e:         e,
		sess:      sess,
		dest:      dest,
		logger:    logger,
		units:     max(units, 1),
		tracks:    make([]*models.FailureRecord, len(job.Tracks)),
		albums:    make([]*models.FailureRecord, len(job.Albums)),
		playlists: make([]*models.PlaylistReport, len(job.Playlists)),
	}
}

// stop reports whether no further items may start.
func (r *run) stop(ctx context.Context) bool {
	if r.sess.Cancelled() {
		r.skipped.Store(true)
		return true
	}
	return ctx.Err() != nil
}

func (r *run) advance(kind models.ItemKind, label string, ok bool) {
	r.sess.Advance(kind, label, ok)
	r.e.sendProgress(itemUpdate(r.sess.Snapshot(), label, ok))
}

// fail records a standalone track or album that did not reach the destination.
func (r *run) fail(kind models.ItemKind, index int, label, reason string) {
	rec := models.FailureRecord{Kind: kind, Label: label, Reason: reason}

	r.mu.Lock()
	switch kind {
	case models.KindTrack:
		r.tracks[index] = &rec
	case models.KindAlbum:
		r.albums[index] = &rec
	}
	r.mu.Unlock()

	r.logger.Warn("item not transferred", "kind", kind, "item", label, "reason", reason)
	r.sess.AddFailure(rec)
}

func (r *run) setPlaylist(index int, rep models.PlaylistReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playlists[index] = &rep
}

func (r *run) report() *models.Report {
	snap := r.sess.Snapshot()
	rep := &models.Report{
		TransferID:  r.sess.ID(),
		Destination: r.dest.Name(),
		Succeeded:   snap.Succeeded,
		Total:       snap.Total,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.tracks {
		if rec != nil {
			rep.Tracks = append(rep.Tracks, *rec)
		}
	}
	for _, rec := range r.albums {
		if rec != nil {
			rep.Albums = append(rep.Albums, *rec)
		}
	}
	for _, p := range r.playlists {
		if p != nil {
			rep.Playlists = append(rep.Playlists, *p)
		}
	}
	return rep
}

func trackLabel(t models.Track) string {
	if t.Title == "" {
		return "(unavailable item)"
	}
	return t.Label()
}
