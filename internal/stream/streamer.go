// Package stream fans out per-session event logs to live observers.
// Each session owns one append-only Log; the Streamer is the registry
// keyed by session id and the source of heartbeat timers.
package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/briefd/briefd/internal/models"
)

// ErrUnknownSession is returned for operations on a session id with no log.
var ErrUnknownSession = errors.New("unknown session")

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 15 * time.Second

// Streamer manages the event logs of all active sessions.
type Streamer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	logs map[string]*Log
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Streamer) { s.now = now }
}

// New creates a Streamer emitting heartbeats after the given idle interval.
func New(heartbeatInterval time.Duration, opts ...Option) *Streamer {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	s := &Streamer{
		interval: heartbeatInterval,
		now:      time.Now,
		logs:     make(map[string]*Log),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the event log for a new session and starts its heartbeat
// timer. Opening an id twice returns the existing log.
func (s *Streamer) Open(sessionID string) *Log {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.logs[sessionID]; ok {
		return l
	}
	l := newLog(s.now)
	s.logs[sessionID] = l
	go l.heartbeatLoop(s.interval)
	return l
}

// Append records an event for the session and pushes it to subscribers.
func (s *Streamer) Append(sessionID string, kind models.EventKind, message string) (models.Event, error) {
	l, ok := s.lookup(sessionID)
	if !ok {
		return models.Event{}, ErrUnknownSession
	}
	return l.Append(kind, message)
}

// Subscribe attaches an observer to the session's log, returning the
// accumulated history followed by a handle for live events.
func (s *Streamer) Subscribe(sessionID string) ([]models.Event, *Subscriber, error) {
	l, ok := s.lookup(sessionID)
	if !ok {
		return nil, nil, ErrUnknownSession
	}
	history, sub := l.Subscribe()
	return history, sub, nil
}

// Close seals the session's log after its terminal event.
func (s *Streamer) Close(sessionID string) {
	if l, ok := s.lookup(sessionID); ok {
		l.CloseLog()
	}
}

// Remove drops the session's log entirely. Used on registry eviction.
func (s *Streamer) Remove(sessionID string) {
	s.mu.Lock()
	l, ok := s.logs[sessionID]
	delete(s.logs, sessionID)
	s.mu.Unlock()
	if ok {
		l.CloseLog()
	}
}

// Events returns a copy of the session's full event log.
func (s *Streamer) Events(sessionID string) ([]models.Event, error) {
	l, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	return l.Events(), nil
}

func (s *Streamer) lookup(sessionID string) (*Log, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[sessionID]
	return l, ok
}
