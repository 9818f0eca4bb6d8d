package models

import "time"

// SessionStatus represents the state of a research session.
type SessionStatus string

const (
	SessionStatusQueued      SessionStatus = "queued"
	SessionStatusResearching SessionStatus = "researching"
	SessionStatusWriting     SessionStatus = "writing"
	SessionStatusRendering   SessionStatus = "rendering"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusCancelled   SessionStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// Result holds the outcome of a terminal session. Exactly one of
// PDFPath or ErrorMessage is meaningful; MarkdownPath is retained even
// when rendering fails so research work is never lost.
type Result struct {
	PDFPath      string `json:"pdf_path,omitempty"`
	MarkdownPath string `json:"markdown_path,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SessionSummary is the read-only view of a session returned by
// listings and snapshots.
type SessionSummary struct {
	ID          string        `json:"id"`
	Topic       string        `json:"topic"`
	ExtraPrompt string        `json:"extra_prompt,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Result      *Result       `json:"result,omitempty"`
}
