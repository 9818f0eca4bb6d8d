// Package store persists finished research sessions. The archive is
// layered on top of the in-memory registry: live session state never
// depends on it.
package store

import (
	"context"
	"errors"

	"github.com/briefd/briefd/internal/models"
)

// ErrNotFound is returned when a session id is not in the archive.
var ErrNotFound = errors.New("session not found in archive")

// Store is the session archive interface.
type Store interface {
	SaveSession(ctx context.Context, summary models.SessionSummary, events []models.Event) error
	GetSession(ctx context.Context, id string) (models.SessionSummary, []models.Event, error)
	ListSessions(ctx context.Context, limit int) ([]models.SessionSummary, error)
	Close() error
}
