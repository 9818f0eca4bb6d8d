package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/stream"
)

// Session is one end-to-end research request and its tracked lifecycle.
// Status transitions are monotonic: once a terminal status is set, no
// further transition is permitted. The session is mutated only by its
// own executor goroutine and by cancellation requests from the Manager.
type Session struct {
	ID          string
	Topic       string
	ExtraPrompt string
	CreatedAt   time.Time

	log    *stream.Log
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	status          models.SessionStatus
	cancelRequested bool
	result          *models.Result
	endedAt         *time.Time
}

// Log returns the session's event log.
func (s *Session) Log() *stream.Log { return s.log }

// Context is cancelled when cancellation is requested. Collaborator
// calls receive it so in-flight work can be abandoned at the next
// checkpoint.
func (s *Session) Context() context.Context { return s.ctx }

// Status returns the current status.
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CancelRequested reports whether cancellation has been requested.
// The flag is set once and never cleared.
func (s *Session) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// requestCancel sets the cancellation flag and cancels the session
// context. Returns false if the session is already terminal.
func (s *Session) requestCancel() bool {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.cancelRequested = true
	s.mu.Unlock()
	s.cancel()
	return true
}

// Transition moves the session to a non-terminal status.
func (s *Session) Transition(to models.SessionStatus) error {
	if to.Terminal() {
		return fmt.Errorf("use Finish for terminal status %s", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return fmt.Errorf("session %s is %s: no transition to %s", s.ID, s.status, to)
	}
	s.status = to
	return nil
}

// Finish moves the session to a terminal status exactly once, recording
// the result and end time.
func (s *Session) Finish(to models.SessionStatus, result *models.Result, now time.Time) error {
	if !to.Terminal() {
		return fmt.Errorf("%s is not a terminal status", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return fmt.Errorf("session %s already terminal (%s)", s.ID, s.status)
	}
	s.status = to
	s.result = result
	ended := now.UTC()
	s.endedAt = &ended
	return nil
}

// Result returns the terminal result, or nil before termination.
func (s *Session) Result() *models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Summary returns the read-only view of the session.
func (s *Session) Summary() models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionSummary{
		ID:          s.ID,
		Topic:       s.Topic,
		ExtraPrompt: s.ExtraPrompt,
		Status:      s.status,
		CreatedAt:   s.CreatedAt,
		EndedAt:     s.endedAt,
		Result:      s.result,
	}
}
