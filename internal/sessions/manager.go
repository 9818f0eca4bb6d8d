// Package sessions tracks the lifecycle of research sessions. The
// Manager is the single point of concurrency control over the session
// set: registration, lookup, cancellation, and eviction all go through
// its mutex.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/stream"
)

var (
	// ErrNotFound is returned for lookups of unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyTerminal is returned when cancelling a finished session.
	ErrAlreadyTerminal = errors.New("session already terminal")
)

// DefaultMaxHistory caps how many terminal sessions the registry retains.
const DefaultMaxHistory = 100

// Executor drives one session from queued to a terminal state.
type Executor interface {
	Run(ctx context.Context, sess *Session)
}

// Archiver persists a finished session. Optional; live state never
// depends on it.
type Archiver interface {
	SaveSession(ctx context.Context, summary models.SessionSummary, events []models.Event) error
}

// Manager creates, looks up, cancels, and enumerates sessions.
type Manager struct {
	streamer   *stream.Streamer
	exec       Executor
	archive    Archiver
	now        func() time.Time
	newID      func() string
	maxHistory int

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator injects an id generator for tests.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithArchive persists finished sessions to the given store.
func WithArchive(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

// WithMaxHistory bounds the number of retained terminal sessions.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// NewManager creates a session manager with injected dependencies.
func NewManager(streamer *stream.Streamer, exec Executor, opts ...Option) *Manager {
	m := &Manager{
		streamer:   streamer,
		exec:       exec,
		now:        time.Now,
		newID:      newULID,
		maxHistory: DefaultMaxHistory,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Create registers a new queued session and starts its executor in the
// background. It never blocks on pipeline work.
func (m *Manager) Create(topic, extraPrompt string) string {
	id := m.newID()
	ctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		ID:          id,
		Topic:       topic,
		ExtraPrompt: extraPrompt,
		CreatedAt:   m.now().UTC(),
		log:         m.streamer.Open(id),
		ctx:         ctx,
		cancel:      cancel,
	}
	sess.status = models.SessionStatusQueued

	m.mu.Lock()
	m.sessions[id] = sess
	m.evictLocked()
	m.mu.Unlock()

	go m.run(ctx, sess)
	return id
}

// run drives the executor and archives the finished session afterwards.
func (m *Manager) run(ctx context.Context, sess *Session) {
	m.exec.Run(ctx, sess)

	if m.archive == nil {
		return
	}
	events := sess.Log().Events()
	if err := m.archive.SaveSession(context.Background(), sess.Summary(), events); err != nil {
		slog.Warn("failed to archive session", "session_id", sess.ID, "error", err)
	}
}

// Get returns the session for the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Cancel requests cooperative cancellation of a session. Idempotent for
// sessions still in flight; returns ErrAlreadyTerminal once finished.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !sess.requestCancel() {
		return ErrAlreadyTerminal
	}
	return nil
}

// List returns summaries of all retained sessions, most recent first.
func (m *Manager) List() []models.SessionSummary {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]models.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// evictLocked drops the oldest terminal sessions once the registry
// exceeds maxHistory. Active sessions are never evicted. Requires m.mu.
func (m *Manager) evictLocked() {
	if len(m.sessions) <= m.maxHistory {
		return
	}

	var terminal []*Session
	for _, s := range m.sessions {
		if s.Status().Terminal() {
			terminal = append(terminal, s)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].CreatedAt.Before(terminal[j].CreatedAt)
	})

	excess := len(m.sessions) - m.maxHistory
	for i := 0; i < excess && i < len(terminal); i++ {
		id := terminal[i].ID
		delete(m.sessions, id)
		m.streamer.Remove(id)
	}
}
