// Package journal persists failed requests so they can be inspected after
// the process that made them has exited.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/ews-client/internal/trace"
)

// ErrNotFound is returned by Get for an unknown entry ID.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one journaled failed request.
type Entry struct {
	ID              string    `db:"id"`
	Operation       string    `db:"operation"`
	URL             string    `db:"url"`
	RequestHeaders  string    `db:"request_headers"`
	RequestBody     string    `db:"request_body"`
	StatusCode      int       `db:"status_code"`
	ResponseHeaders string    `db:"response_headers"`
	ResponseBody    string    `db:"response_body"`
	Error           string    `db:"error"`
	FailedAt        time.Time `db:"failed_at"`
}

// SQLiteJournal stores failed requests in a local SQLite database. It
// implements trace.Recorder.
type SQLiteJournal struct {
	db *sqlx.DB
}

var _ trace.Recorder = (*SQLiteJournal)(nil)

// DefaultPath returns ~/.config/ews-client/journal.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "journal.db")
	}
	return filepath.Join(home, ".config", "ews-client", "journal.db")
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return j, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (j *SQLiteJournal) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := j.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = j.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Record inserts fr under a new ID.
func (j *SQLiteJournal) Record(ctx context.Context, fr *trace.FailedRequest) error {
	failedAt := fr.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO failed_requests (
			id, operation, url,
			request_headers, request_body,
			status_code, response_headers, response_body,
			error, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), fr.Operation, fr.URL,
		fr.RequestHeaders, string(fr.RequestBody),
		fr.StatusCode, fr.ResponseHeaders, string(fr.ResponseBody),
		fr.Error, failedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording failed %s request: %w", fr.Operation, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT * FROM failed_requests ORDER BY failed_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var entries []Entry
	if err := j.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("listing failed requests: %w", err)
	}
	return entries, nil
}

// Get returns the entry with the given ID.
func (j *SQLiteJournal) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	err := j.db.GetContext(ctx, &e, "SELECT * FROM failed_requests WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting failed request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting failed request %s: %w", id, err)
	}
	return &e, nil
}

// Purge deletes entries that failed before cutoff and returns how many
// were removed.
func (j *SQLiteJournal) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx,
		"DELETE FROM failed_requests WHERE failed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging failed requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged rows: %w", err)
	}
	return n, nil
}
