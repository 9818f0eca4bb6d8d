// Package api exposes the session orchestrator over HTTP: session
// CRUD, cancellation, report downloads, and live event streaming via
// SSE and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/briefd/briefd/internal/sessions"
	"github.com/briefd/briefd/internal/stream"
)

// Server provides the REST API handlers.
type Server struct {
	manager   *sessions.Manager
	streamer  *stream.Streamer
	outputDir string
}

// NewServer creates a new API server.
func NewServer(manager *sessions.Manager, streamer *stream.Streamer, outputDir string) *Server {
	return &Server{
		manager:   manager,
		streamer:  streamer,
		outputDir: outputDir,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.cancelSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.streamEvents)
	mux.HandleFunc("GET /api/v1/sessions/{id}/ws", s.streamEventsWS)

	mux.HandleFunc("GET /api/v1/reports", s.listReports)
	mux.HandleFunc("GET /api/v1/reports/{filename}", s.downloadReport)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Sessions ---

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic       string `json:"topic"`
		ExtraPrompt string `json:"extra_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	id := s.manager.Create(strings.TrimSpace(req.Topic), strings.TrimSpace(req.ExtraPrompt))
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch err := s.manager.Cancel(id); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "cancelling"})
	case errors.Is(err, sessions.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sessions.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// streamEvents is the SSE push channel: full replay from seq 1, then
// live events in seq order, closing after the terminal event.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	history, sub, err := s.streamer.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, ev := range history {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// --- Reports ---

type reportEntry struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Size     int64  `json:"size"`
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []reportEntry{})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reports := []reportEntry{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".pdf")
		reports = append(reports, reportEntry{
			Filename: entry.Name(),
			Name:     titleCase(strings.ReplaceAll(strings.ReplaceAll(stem, "-", " "), "_", " ")),
			Date:     info.ModTime().Format(time.RFC3339),
			Size:     info.Size(),
		})
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Date > reports[j].Date })
	writeJSON(w, http.StatusOK, reports)
}

// titleCase capitalizes the first letter of each word for display names.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.PathValue("filename"))
	path := filepath.Join(s.outputDir, filename)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}
