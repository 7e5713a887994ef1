package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const DefaultTTL = time.Hour

// Key builds the serialization key for a user and destination.
func Key(user, destination string) string {
	return strings.ToLower(user) + ":" + strings.ToLower(destination)
}

// Manager owns the sessions of one process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	active   map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a manager expiring terminal sessions after ttl (or [DefaultTTL] when ttl <= 0).
func NewManager(ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Session),
		active:   make(map[string]*Session),
		ttl:      ttl,
		now:      now,
	}
}

// Create registers a pending session for job under key.
//
// Returns [shared.ErrTransferInProgress] while another session with the same key is not terminal.
func (m *Manager) Create(job models.TransferJob, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key != "" {
		if cur, ok := m.active[key]; ok && !cur.Phase().Terminal() {
			return nil, fmt.Errorf("%w: %s (session %s)", shared.ErrTransferInProgress, key, cur.ID())
		}
	}
	if job.ID != "" {
		if _, exists := m.sessions[job.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate session id %s", shared.ErrInvalidArgument, job.ID)
		}
	}

	s := New(job, WithKey(key), WithClock(m.now))
	m.sessions[s.ID()] = s
	if key != "" {
		m.active[key] = s
	}
	return s, nil
}

// Get returns the session with id or [shared.ErrNotFound].
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", shared.ErrNotFound, id)
	}
	return s, nil
}

// List returns snapshots of every held session, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Sweep drops terminal sessions that finished more than the TTL before now and returns how many
// were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		at, done := s.FinishedAt()
		if !done || now.Sub(at) < m.ttl {
			continue
		}
		delete(m.sessions, id)
		if m.active[s.Key()] == s {
			delete(m.active, s.Key())
		}
		removed++
	}
	return removed
}
