package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/sessions"
	"github.com/briefd/briefd/internal/stream"
)

// scriptedExecutor appends a fixed event script and finishes the session.
type scriptedExecutor struct {
	events []models.Event
	status models.SessionStatus
	block  chan struct{} // if set, wait here before finishing
}

func (e *scriptedExecutor) Run(ctx context.Context, sess *sessions.Session) {
	log := sess.Log()
	defer log.CloseLog()

	_ = sess.Transition(models.SessionStatusResearching)
	for _, ev := range e.events {
		_, _ = log.Append(ev.Kind, ev.Message)
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			_ = sess.Finish(models.SessionStatusCancelled, nil, time.Now())
			_, _ = log.Append(models.EventProgress, "cancelled")
			return
		}
	}
	status := e.status
	if status == "" {
		status = models.SessionStatusCompleted
	}
	_ = sess.Finish(status, &models.Result{PDFPath: "/reports/out.pdf"}, time.Now())
	_, _ = log.Append(models.EventDone, "Report saved: out.pdf")
}

func testServer(t *testing.T, exec sessions.Executor, outputDir string) (*httptest.Server, *sessions.Manager) {
	t.Helper()
	streamer := stream.New(time.Hour)
	manager := sessions.NewManager(streamer, exec)
	srv := httptest.NewServer(NewServer(manager, streamer, outputDir).Router())
	t.Cleanup(srv.Close)
	return srv, manager
}

func createSession(t *testing.T, srv *httptest.Server, topic string) string {
	t.Helper()
	body := strings.NewReader(fmt.Sprintf(`{"topic":%q}`, topic))
	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["session_id"])
	return out["session_id"]
}

func waitTerminal(t *testing.T, m *sessions.Manager, id string) {
	t.Helper()
	sess, err := m.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.Status().Terminal() },
		2*time.Second, 5*time.Millisecond)
}

func TestCreateSession_Accepted(t *testing.T) {
	srv, m := testServer(t, &scriptedExecutor{}, t.TempDir())

	id := createSession(t, srv, "quantum computing market")
	waitTerminal(t, m, id)

	sess, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "quantum computing market", sess.Topic)
}

func TestCreateSession_BadRequests(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{"topic":"   "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession(t *testing.T) {
	srv, m := testServer(t, &scriptedExecutor{}, t.TempDir())
	id := createSession(t, srv, "topic")
	waitTerminal(t, m, id)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary models.SessionSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, id, summary.ID)
	assert.Equal(t, models.SessionStatusCompleted, summary.Status)
	require.NotNil(t, summary.Result)
	assert.Equal(t, "/reports/out.pdf", summary.Result.PDFPath)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	resp, err := http.Get(srv.URL + "/api/v1/sessions/does-not-exist")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	srv, m := testServer(t, &scriptedExecutor{}, t.TempDir())
	id1 := createSession(t, srv, "first")
	id2 := createSession(t, srv, "second")
	waitTerminal(t, m, id1)
	waitTerminal(t, m, id2)

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []models.SessionSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestCancelSession(t *testing.T) {
	block := make(chan struct{})
	srv, m := testServer(t, &scriptedExecutor{block: block}, t.TempDir())
	id := createSession(t, srv, "topic")

	resp, err := http.Post(srv.URL+"/api/v1/sessions/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	waitTerminal(t, m, id)
	sess, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, sess.Status())
}

func TestCancelSession_NotFound(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	resp, err := http.Post(srv.URL+"/api/v1/sessions/missing/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelSession_AlreadyTerminalConflicts(t *testing.T) {
	srv, m := testServer(t, &scriptedExecutor{}, t.TempDir())
	id := createSession(t, srv, "topic")
	waitTerminal(t, m, id)

	resp, err := http.Post(srv.URL+"/api/v1/sessions/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStreamEvents_ReplaysFullLog(t *testing.T) {
	exec := &scriptedExecutor{events: []models.Event{
		{Kind: models.EventProgress, Message: "starting research"},
		{Kind: models.EventToolActivity, Message: "[1] Searching: quantum"},
	}}
	srv, m := testServer(t, exec, t.TempDir())
	id := createSession(t, srv, "topic")
	waitTerminal(t, m, id)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The log is sealed, so the stream replays everything and ends.
	var events []models.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, "starting research", events[0].Message)
	assert.Equal(t, models.EventDone, events[2].Kind)
}

func TestStreamEvents_UnknownSession(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	resp, err := http.Get(srv.URL + "/api/v1/sessions/missing/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamEventsWS_ReplayThenClose(t *testing.T) {
	exec := &scriptedExecutor{events: []models.Event{
		{Kind: models.EventProgress, Message: "starting research"},
	}}
	srv, m := testServer(t, exec, t.TempDir())
	id := createSession(t, srv, "topic")
	waitTerminal(t, m, id)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var events []models.Event
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Normal closure after the terminal event.
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		var ev models.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "starting research", events[0].Message)
	assert.Equal(t, models.EventDone, events[1].Kind)
}

func TestListReports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quantum_market_20260301_120000.pdf"), []byte("%PDF-1.4"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a report"), 0644))

	srv, _ := testServer(t, &scriptedExecutor{}, dir)

	resp, err := http.Get(srv.URL + "/api/v1/reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reports []reportEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "quantum_market_20260301_120000.pdf", reports[0].Filename)
	assert.Equal(t, "Quantum Market 20260301 120000", reports[0].Name)
	assert.EqualValues(t, 8, reports[0].Size)
}

func TestListReports_MissingDirIsEmpty(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, filepath.Join(t.TempDir(), "nope"))

	resp, err := http.Get(srv.URL + "/api/v1/reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reports []reportEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reports))
	assert.Empty(t, reports)
}

func TestDownloadReport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4 content"), 0644))

	srv, _ := testServer(t, &scriptedExecutor{}, dir)

	resp, err := http.Get(srv.URL + "/api/v1/reports/report.pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.pdf")
}

func TestDownloadReport_NotFound(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	resp, err := http.Get(srv.URL + "/api/v1/reports/missing.pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t, &scriptedExecutor{}, t.TempDir())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/sessions", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
