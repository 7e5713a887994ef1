package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// Phase is the state of a session.
type Phase int

const (
	Pending Phase = iota
	Running
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether p is final.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*p = Pending
	case "running":
		*p = Running
	case "completed":
		*p = Completed
	case "failed":
		*p = Failed
	default:
		return fmt.Errorf("%w: unknown phase %q", shared.ErrInvalidInput, b)
	}
	return nil
}

// Counter tracks one category of selected items.
type Counter struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID          string                 `json:"id"`
	Destination string                 `json:"destination"`
	Phase       Phase                  `json:"phase"`
	Completed   int                    `json:"completed_items"`
	Total       int                    `json:"total_items"`
	Succeeded   int                    `json:"succeeded"`
	Percent     int                    `json:"progress_percent"`
	Current     string                 `json:"current_item,omitempty"`
	Tracks      Counter                `json:"tracks"`
	Albums      Counter                `json:"albums"`
	Playlists   Counter                `json:"playlists"`
	Failures    []models.FailureRecord `json:"failures"`
	Error       string                 `json:"error,omitempty"`
	Guide       bool                   `json:"guide"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}

// Session is the mutable state of one transfer job. Only the orchestrator running the job mutates
// it; any goroutine may read.
type Session struct {
	mu sync.Mutex

	id       string
	key      string
	job      models.TransferJob
	now      func() time.Time
	phase    Phase
	total    int
	done     int
	ok       int
	percent  int
	current  string
	counters map[models.ItemKind]*Counter
	failures []models.FailureRecord
	err      error
	report   *models.Report
	guide    *models.Guide

	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time

	cancelled atomic.Bool
	doneCh    chan struct{}
	subs      map[int]chan Snapshot
	nextSub   int
}

type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithKey sets the key used by [Manager] to serialize transfers.
func WithKey(key string) Option {
	return func(s *Session) { s.key = key }
}

// New creates a pending session for job. The job id is generated when empty.
func New(job models.TransferJob, opts ...Option) *Session {
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}
	s := &Session{
		id:     job.ID,
		job:    job,
		now:    time.Now,
		phase:  Pending,
		doneCh: make(chan struct{}),
		subs:   make(map[int]chan Snapshot),
		counters: map[models.ItemKind]*Counter{
			models.KindTrack:    {Total: len(job.Tracks)},
			models.KindAlbum:    {Total: len(job.Albums)},
			models.KindPlaylist: {Total: len(job.Playlists)},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	return s
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Key() string             { return s.key }
func (s *Session) Job() models.TransferJob { return s.job }

// Done is closed when the session reaches a terminal phase.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Start enters the running phase with total selected items.
func (s *Session) Start(total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Pending {
		return fmt.Errorf("%w: start from %s", shared.ErrInvalidTransition, s.phase)
	}
	if total < 0 {
		total = 0
	}

	at := s.now()
	s.phase = Running
	s.total = total
	s.startedAt = &at
	s.publish()
	return nil
}

// Advance marks one selected item finished. ok reports whether it reached the destination.
func (s *Session) Advance(kind models.ItemKind, label string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Running || s.done >= s.total {
		return
	}

	s.done++
	if ok {
		s.ok++
	}
	if c, found := s.counters[kind]; found && c.Completed < c.Total {
		c.Completed++
		if ok {
			c.Succeeded++
		}
	}
	s.current = label
	s.bumpPercent()
	s.publish()
}

// SetCurrent updates the label of the item being worked on.
func (s *Session) SetCurrent(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() || s.current == label {
		return
	}
	s.current = label
	s.publish()
}

// AddFailure appends rec to the failure list.
func (s *Session) AddFailure(rec models.FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return
	}
	s.failures = append(s.failures, rec)
	s.publish()
}

// SetGuide attaches the migration guide produced for a search-only destination.
func (s *Session) SetGuide(g *models.Guide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide = g
}

// Complete finishes a running session. Progress is forced to 100.
func (s *Session) Complete(report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Running {
		return fmt.Errorf("%w: complete from %s", shared.ErrInvalidTransition, s.phase)
	}

	s.done = s.total
	s.percent = 100
	s.current = ""
	s.report = report
	s.finish(Completed)
	return nil
}

// Fail finishes a pending or running session with err. report holds the items that were settled
// before the failure and may be nil for jobs rejected before any work.
func (s *Session) Fail(err error, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return fmt.Errorf("%w: fail from %s", shared.ErrInvalidTransition, s.phase)
	}
	if err == nil {
		err = errors.New("transfer failed")
	}

	s.err = err
	s.current = ""
	s.report = report
	s.finish(Failed)
	return nil
}

// Cancel requests cooperative cancellation. The orchestrator observes it between items.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the failure cause of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Report returns the list of items that did not transfer. Failed sessions carry the partial report
// of the items settled before the failure; it is nil while running and for rejected jobs.
func (s *Session) Report() *models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Guide returns the migration guide, or nil when the destination accepted writes.
func (s *Session) Guide() *models.Guide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guide
}

// FinishedAt returns when the session reached a terminal phase.
func (s *Session) FinishedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedAt == nil {
		return time.Time{}, false
	}
	return *s.finishedAt, true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subscribe returns a channel receiving a snapshot after every change, starting with the current
// state. Delivery never blocks the session: an unread snapshot is replaced by the newer one. The
// channel is closed after the terminal snapshot. The returned func unsubscribes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- s.snapshot()
	if s.phase.Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) bumpPercent() {
	if s.total <= 0 {
		return
	}
	p := min(max(100*s.done/s.total, 0), 100)
	if p > s.percent {
		s.percent = p
	}
}

func (s *Session) finish(phase Phase) {
	at := s.now()
	s.phase = phase
	s.finishedAt = &at
	s.publish()

	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	close(s.doneCh)
}

// publish must be called with s.mu held.
func (s *Session) publish() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		Destination: s.job.Destination,
		Phase:       s.phase,
		Completed:   s.done,
		Total:       s.total,
		Succeeded:   s.ok,
		Percent:     s.percent,
		Current:     s.current,
		Tracks:      *s.counters[models.KindTrack],
		Albums:      *s.counters[models.KindAlbum],
		Playlists:   *s.counters[models.KindPlaylist],
		Failures:    append([]models.FailureRecord{}, s.failures...),
		Guide:       s.guide != nil,
		CreatedAt:   s.createdAt,
		StartedAt:   s.startedAt,
		FinishedAt:  s.finishedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}
