package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/briefd/briefd/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors when several sessions
	// finish at once.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession writes a finished session and its full event log in one
// transaction. Saving the same id again replaces the previous record.
func (s *SQLiteStore) SaveSession(ctx context.Context, summary models.SessionSummary, events []models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pdfPath, mdPath, errKind, errMsg string
	if summary.Result != nil {
		pdfPath = summary.Result.PDFPath
		mdPath = summary.Result.MarkdownPath
		errKind = summary.Result.ErrorKind
		errMsg = summary.Result.ErrorMessage
	}

	var endedAt any
	if summary.EndedAt != nil {
		endedAt = summary.EndedAt.UTC()
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions
		(id, topic, extra_prompt, status, pdf_path, markdown_path, error_kind, error_message, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Topic, summary.ExtraPrompt, string(summary.Status),
		pdfPath, mdPath, errKind, errMsg, summary.CreatedAt.UTC(), endedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE session_id = ?", summary.ID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	for _, ev := range events {
		_, err = tx.ExecContext(ctx, `INSERT INTO events (session_id, seq, kind, message, timestamp)
			VALUES (?, ?, ?, ?, ?)`,
			summary.ID, ev.Seq, string(ev.Kind), ev.Message, ev.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}

	return tx.Commit()
}

// GetSession returns an archived session and its event log.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (models.SessionSummary, []models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, topic, extra_prompt, status,
		pdf_path, markdown_path, error_kind, error_message, created_at, ended_at
		FROM sessions WHERE id = ?`, id)

	summary, err := scanSession(row)
	if err == sql.ErrNoRows {
		return models.SessionSummary{}, nil, ErrNotFound
	}
	if err != nil {
		return models.SessionSummary{}, nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, kind, message, timestamp
		FROM events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return models.SessionSummary{}, nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var kind string
		if err := rows.Scan(&ev.Seq, &kind, &ev.Message, &ev.Timestamp); err != nil {
			return models.SessionSummary{}, nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		events = append(events, ev)
	}

	return summary, events, rows.Err()
}

// ListSessions returns archived sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	query := `SELECT id, topic, extra_prompt, status,
		pdf_path, markdown_path, error_kind, error_message, created_at, ended_at
		FROM sessions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSummary
	for rows.Next() {
		summary, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.SessionSummary, error) {
	var summary models.SessionSummary
	var status, pdfPath, mdPath, errKind, errMsg string
	var endedAt sql.NullTime

	err := row.Scan(&summary.ID, &summary.Topic, &summary.ExtraPrompt, &status,
		&pdfPath, &mdPath, &errKind, &errMsg, &summary.CreatedAt, &endedAt)
	if err != nil {
		return models.SessionSummary{}, err
	}

	summary.Status = models.SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		summary.EndedAt = &t
	}
	if pdfPath != "" || mdPath != "" || errKind != "" || errMsg != "" {
		summary.Result = &models.Result{
			PDFPath:      pdfPath,
			MarkdownPath: mdPath,
			ErrorKind:    errKind,
			ErrorMessage: errMsg,
		}
	}
	return summary, nil
}

// PruneSessions deletes archived sessions ended before the cutoff,
// returning the number removed.
func (s *SQLiteStore) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
