package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/stream"
)

// stubExecutor lets each test script what the pipeline does.
type stubExecutor struct {
	run func(ctx context.Context, sess *Session)
}

func (s *stubExecutor) Run(ctx context.Context, sess *Session) {
	if s.run != nil {
		s.run(ctx, sess)
	}
}

// finishExecutor drives every session straight to the given terminal
// status and signals completion.
func finishExecutor(status models.SessionStatus, done chan<- string) *stubExecutor {
	return &stubExecutor{run: func(ctx context.Context, sess *Session) {
		defer sess.Log().CloseLog()
		_ = sess.Finish(status, nil, time.Now())
		if done != nil {
			done <- sess.ID
		}
	}}
}

// sequentialIDs returns an id generator yielding s1, s2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
}

// tickingClock returns a clock advancing one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestCreate_RegistersAndRuns(t *testing.T) {
	streamer := stream.New(time.Hour)
	done := make(chan string, 1)
	m := NewManager(streamer, finishExecutor(models.SessionStatusCompleted, done),
		WithIDGenerator(sequentialIDs()))

	id := m.Create("quantum computing market", "focus on hardware")
	assert.Equal(t, "s1", id)

	sess, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "quantum computing market", sess.Topic)
	assert.Equal(t, "focus on hardware", sess.ExtraPrompt)

	require.Equal(t, id, <-done)
	require.Eventually(t, func() bool {
		return sess.Status() == models.SessionStatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestGet_NotFound(t *testing.T) {
	m := NewManager(stream.New(time.Hour), &stubExecutor{})

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_NotFound(t *testing.T) {
	m := NewManager(stream.New(time.Hour), &stubExecutor{})

	err := m.Cancel("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_SetsFlagAndCancelsContext(t *testing.T) {
	streamer := stream.New(time.Hour)
	started := make(chan *Session, 1)
	finished := make(chan struct{})

	exec := &stubExecutor{run: func(ctx context.Context, sess *Session) {
		started <- sess
		<-ctx.Done()
		_ = sess.Finish(models.SessionStatusCancelled, nil, time.Now())
		sess.Log().CloseLog()
		close(finished)
	}}
	m := NewManager(streamer, exec)

	id := m.Create("topic", "")
	sess := <-started

	assert.False(t, sess.CancelRequested())
	require.NoError(t, m.Cancel(id))
	assert.True(t, sess.CancelRequested())

	select {
	case <-sess.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("session context not cancelled")
	}

	<-finished
	err := m.Cancel(id)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestCancel_IdempotentWhileRunning(t *testing.T) {
	streamer := stream.New(time.Hour)
	release := make(chan struct{})
	exec := &stubExecutor{run: func(ctx context.Context, sess *Session) {
		<-release
		_ = sess.Finish(models.SessionStatusCancelled, nil, time.Now())
		sess.Log().CloseLog()
	}}
	m := NewManager(streamer, exec)

	id := m.Create("topic", "")
	require.NoError(t, m.Cancel(id))
	require.NoError(t, m.Cancel(id))
	close(release)
}

func TestList_MostRecentFirst(t *testing.T) {
	streamer := stream.New(time.Hour)
	done := make(chan string, 3)
	m := NewManager(streamer, finishExecutor(models.SessionStatusCompleted, done),
		WithIDGenerator(sequentialIDs()), WithClock(tickingClock()))

	for i := 0; i < 3; i++ {
		m.Create(fmt.Sprintf("topic %d", i), "")
		<-done
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "s3", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)
	assert.Equal(t, "s1", list[2].ID)
	assert.True(t, list[0].CreatedAt.After(list[2].CreatedAt))
}

func TestEviction_DropsOldestTerminal(t *testing.T) {
	streamer := stream.New(time.Hour)
	done := make(chan string, 1)
	m := NewManager(streamer, finishExecutor(models.SessionStatusCompleted, done),
		WithIDGenerator(sequentialIDs()), WithClock(tickingClock()), WithMaxHistory(2))

	for i := 0; i < 2; i++ {
		id := m.Create(fmt.Sprintf("topic %d", i), "")
		require.Equal(t, id, <-done)
		sess, err := m.Get(id)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return sess.Status().Terminal() },
			time.Second, 5*time.Millisecond)
	}

	// Third session pushes the registry past the cap: the oldest
	// terminal session goes, along with its event log.
	m.Create("topic 2", "")
	<-done

	_, err := m.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = streamer.Events("s1")
	assert.ErrorIs(t, err, stream.ErrUnknownSession)

	_, err = m.Get("s2")
	assert.NoError(t, err)
	_, err = m.Get("s3")
	assert.NoError(t, err)
}

func TestEviction_NeverDropsActiveSessions(t *testing.T) {
	streamer := stream.New(time.Hour)
	release := make(chan struct{})
	exec := &stubExecutor{run: func(ctx context.Context, sess *Session) {
		<-release
		_ = sess.Finish(models.SessionStatusCompleted, nil, time.Now())
		sess.Log().CloseLog()
	}}
	m := NewManager(streamer, exec,
		WithIDGenerator(sequentialIDs()), WithClock(tickingClock()), WithMaxHistory(1))

	// All three stay active, so nothing is evicted despite the cap.
	for i := 0; i < 3; i++ {
		m.Create(fmt.Sprintf("topic %d", i), "")
	}
	assert.Len(t, m.List(), 3)
	close(release)
}

// recordingArchiver captures archived sessions.
type recordingArchiver struct {
	mu     sync.Mutex
	saved  []models.SessionSummary
	events [][]models.Event
}

func (a *recordingArchiver) SaveSession(ctx context.Context, summary models.SessionSummary, events []models.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, summary)
	a.events = append(a.events, events)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

func TestArchive_SavedAfterRun(t *testing.T) {
	streamer := stream.New(time.Hour)
	archiver := &recordingArchiver{}

	exec := &stubExecutor{run: func(ctx context.Context, sess *Session) {
		_, _ = sess.Log().Append(models.EventProgress, "starting research")
		_ = sess.Finish(models.SessionStatusCompleted, &models.Result{PDFPath: "/tmp/out.pdf"}, time.Now())
		sess.Log().CloseLog()
	}}
	m := NewManager(streamer, exec, WithArchive(archiver), WithIDGenerator(sequentialIDs()))

	id := m.Create("archived topic", "")

	require.Eventually(t, func() bool { return archiver.count() == 1 },
		time.Second, 5*time.Millisecond)

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	assert.Equal(t, id, archiver.saved[0].ID)
	assert.Equal(t, models.SessionStatusCompleted, archiver.saved[0].Status)
	require.Len(t, archiver.events[0], 1)
	assert.Equal(t, "starting research", archiver.events[0][0].Message)
}

func TestSession_TransitionGuards(t *testing.T) {
	streamer := stream.New(time.Hour)
	started := make(chan *Session, 1)
	exec := &stubExecutor{run: func(ctx context.Context, sess *Session) {
		started <- sess
	}}
	m := NewManager(streamer, exec)

	m.Create("topic", "")
	sess := <-started

	require.NoError(t, sess.Transition(models.SessionStatusResearching))
	assert.Error(t, sess.Transition(models.SessionStatusCompleted), "terminal status requires Finish")

	require.NoError(t, sess.Finish(models.SessionStatusFailed, &models.Result{ErrorKind: "agent"}, time.Now()))
	assert.Error(t, sess.Transition(models.SessionStatusWriting))
	assert.Error(t, sess.Finish(models.SessionStatusCompleted, nil, time.Now()))

	summary := sess.Summary()
	assert.Equal(t, models.SessionStatusFailed, summary.Status)
	require.NotNil(t, summary.EndedAt)
	require.NotNil(t, summary.Result)
	assert.Equal(t, "agent", summary.Result.ErrorKind)
}
