package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// schema is the reading log table, created on open. A single table is
// enough; there is no migration framework behind it.
const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	received_at TEXT    NOT NULL,
	code        TEXT    NOT NULL,
	value       TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	raw         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_code ON readings(code, received_at);
`

// Store is an append-only SQLite log of decoded machine readings.
//
// It exists so an operator can answer "what did the machine report last
// night" without a broker subscription running at the time. The store is
// optional; the bridge works the same without it.
type Store struct {
	db   *sql.DB
	path string
}

// Config contains history store options.
// These map to the history section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Entry is one logged reading.
type Entry struct {
	ID         int64
	ReceivedAt time.Time
	Code       string
	Value      string
	Kind       string
	Raw        string
}

// Open creates the history store with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Verifies the connection and creates the schema
//
// Parameters:
//   - cfg: Store configuration
//
// Returns:
//   - *Store: Open store ready for use
//   - error: If connection or schema setup fails
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite only supports one writer; the bridge has exactly one
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	// Owner read/write only; ignore error on first run before the file exists
	_ = os.Chmod(cfg.Path, filePermissions)

	return &Store{db: db, path: cfg.Path}, nil
}

// Record appends one reading to the log.
//
// Parameters:
//   - ctx: Context for cancellation
//   - e: The entry to record (ID is ignored)
//
// Returns:
//   - error: ErrRecordFailed (wrapped) on failure
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (received_at, code, value, kind, raw) VALUES (?, ?, ?, ?, ?)`,
		e.ReceivedAt.UTC().Format(time.RFC3339),
		e.Code,
		e.Value,
		e.Kind,
		e.Raw,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	return nil
}

// Recent returns the most recent entries for a code, newest first.
// An empty code returns entries for all codes.
//
// Parameters:
//   - ctx: Context for cancellation
//   - code: Code filter, or "" for all
//   - limit: Maximum entries to return
//
// Returns:
//   - []Entry: Matching entries, newest first
//   - error: On query failure
func (s *Store) Recent(ctx context.Context, code string, limit int) ([]Entry, error) {
	query := `SELECT id, received_at, code, value, kind, raw FROM readings`
	args := []any{}
	if code != "" {
		query += ` WHERE code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Code, &e.Value, &e.Kind, &e.Raw); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339, at); parseErr == nil {
			e.ReceivedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the cutoff.
//
// Returns:
//   - int64: Number of entries deleted
//   - error: On failure
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM readings WHERE received_at < ?`,
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the store is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := s.db.PingContext(checkCtx); err != nil {
		return fmt.Errorf("history health check: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
