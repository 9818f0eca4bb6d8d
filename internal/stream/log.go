package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/briefd/briefd/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind is dropped rather than stalling the session.
const subscriberBuffer = 64

// Subscriber is one observer attached to a session's event log.
type Subscriber struct {
	ch  chan models.Event
	log *Log
}

// Events returns the channel live events are delivered on. The channel
// is closed when the session reaches a terminal state or the subscriber
// is dropped.
func (s *Subscriber) Events() <-chan models.Event {
	return s.ch
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.log.unsubscribe(s)
}

// Log is the append-only event record for one session. A single writer
// (the session's executor) appends; any number of subscribers read.
type Log struct {
	now func() time.Time

	mu         sync.Mutex
	events     []models.Event
	subs       map[*Subscriber]struct{}
	closed     bool
	openedAt   time.Time
	lastAppend time.Time
	done       chan struct{}
}

func newLog(now func() time.Time) *Log {
	start := now()
	return &Log{
		now:        now,
		subs:       make(map[*Subscriber]struct{}),
		openedAt:   start,
		lastAppend: start,
		done:       make(chan struct{}),
	}
}

// Append assigns the next seq, records the event, and pushes it to every
// current subscriber. Subscribers whose buffers are full are dropped;
// the append itself never blocks or fails for the session.
func (l *Log) Append(kind models.EventKind, message string) (models.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return models.Event{}, fmt.Errorf("event log is closed")
	}
	return l.append(kind, message), nil
}

// append requires l.mu held.
func (l *Log) append(kind models.EventKind, message string) models.Event {
	ev := models.Event{
		Seq:       len(l.events) + 1,
		Kind:      kind,
		Message:   message,
		Timestamp: l.now().UTC(),
	}
	l.events = append(l.events, ev)
	l.lastAppend = l.now()

	for sub := range l.subs {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber can't keep up, detach it.
			delete(l.subs, sub)
			close(sub.ch)
		}
	}
	return ev
}

// Subscribe registers an observer and returns the full history so far.
// The handoff is gap-free: every event after the returned history
// arrives on the subscriber channel in seq order. On a closed log the
// subscriber's channel is already closed (replay-and-close).
func (l *Log) Subscribe() ([]models.Event, *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := make([]models.Event, len(l.events))
	copy(history, l.events)

	sub := &Subscriber{
		ch:  make(chan models.Event, subscriberBuffer),
		log: l,
	}
	if l.closed {
		close(sub.ch)
		return history, sub
	}
	l.subs[sub] = struct{}{}
	return history, sub
}

func (l *Log) unsubscribe(sub *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subs[sub]; ok {
		delete(l.subs, sub)
		close(sub.ch)
	}
}

// CloseLog seals the log after a terminal event: no further appends,
// heartbeats stop, and all subscriber channels are closed.
func (l *Log) CloseLog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	for sub := range l.subs {
		delete(l.subs, sub)
		close(sub.ch)
	}
}

// Events returns a copy of the full log.
func (l *Log) Events() []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of appended events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// heartbeatLoop appends a heartbeat whenever no event has been appended
// for a full interval. The timer re-arms for the remaining idle time
// after a recent append, so heartbeats never double up.
func (l *Log) heartbeatLoop(interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-timer.C:
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			idle := l.now().Sub(l.lastAppend)
			if idle >= interval {
				elapsed := l.now().Sub(l.openedAt).Round(time.Second)
				mins := int(elapsed.Minutes())
				secs := int(elapsed.Seconds()) % 60
				l.append(models.EventHeartbeat, fmt.Sprintf("Working... (%dm %ds)", mins, secs))
				timer.Reset(interval)
			} else {
				timer.Reset(interval - idle)
			}
			l.mu.Unlock()
		}
	}
}
