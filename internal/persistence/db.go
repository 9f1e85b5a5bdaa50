// Package persistence provides SQLite-based storage for encoded eigenstate tokens.
// Only tokens and run metadata are stored; cell state is never persisted.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/burzen-core/internal/codex"
)

// DB wraps a SQLite connection for the token journal.
type DB struct {
	conn *sqlx.DB
}

// TokenRecord is one journaled token.
type TokenRecord struct {
	ID        int64  `db:"id" json:"id"`
	RunID     string `db:"run_id" json:"run_id"`
	Tick      uint64 `db:"tick" json:"tick"`
	Token     string `db:"token" json:"token"`
	Checksum  string `db:"checksum" json:"checksum"`
	CreatedAt int64  `db:"created_at" json:"created_at"` // Unix milliseconds
}

// NewRunID returns a fresh identifier for one process run.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		token TEXT NOT NULL,
		checksum TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_run_tick ON tokens(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// AppendToken journals a token for runID at tick. The token must decode, and
// ticks within a run must strictly increase; violations come back as
// *codex.RejectionError.
func (db *DB) AppendToken(runID string, tick uint64, token string) error {
	if _, err := codex.Decode(token); err != nil {
		return fmt.Errorf("append token at tick %d: %w", tick, err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.Get(&last, "SELECT MAX(tick) FROM tokens WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("read last tick: %w", err)
	}
	if last.Valid && tick <= uint64(last.Int64) {
		return codex.Reject(codex.RejectOrder,
			fmt.Sprintf("tick %d does not follow journaled tick %d", tick, last.Int64))
	}

	_, err = tx.Exec(
		"INSERT INTO tokens (run_id, tick, token, checksum, created_at) VALUES (?, ?, ?, ?, ?)",
		runID, tick, token, token[len(token)-8:], time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert token at tick %d: %w", tick, err)
	}

	return tx.Commit()
}

// LastTick returns the highest journaled tick for runID. ok is false when the
// run has no tokens.
func (db *DB) LastTick(runID string) (tick uint64, ok bool, err error) {
	var last sql.NullInt64
	if err := db.conn.Get(&last, "SELECT MAX(tick) FROM tokens WHERE run_id = ?", runID); err != nil {
		return 0, false, err
	}
	if !last.Valid {
		return 0, false, nil
	}
	return uint64(last.Int64), true, nil
}

// RecentTokens returns the most recent N tokens across all runs, newest first.
func (db *DB) RecentTokens(limit int) ([]TokenRecord, error) {
	var records []TokenRecord
	err := db.conn.Select(&records,
		"SELECT id, run_id, tick, token, checksum, created_at FROM tokens ORDER BY id DESC LIMIT ?",
		limit,
	)
	return records, err
}

// RunTokens returns every token of runID in tick order.
func (db *DB) RunTokens(runID string) ([]TokenRecord, error) {
	var records []TokenRecord
	err := db.conn.Select(&records,
		"SELECT id, run_id, tick, token, checksum, created_at FROM tokens WHERE run_id = ? ORDER BY tick",
		runID,
	)
	return records, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key yields ErrNoMeta.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoMeta
	}
	return value, err
}

// ErrNoMeta is returned by GetMeta for unknown keys.
var ErrNoMeta = errors.New("persistence: no such meta key")

// StartRun records runID as the current run and returns the previous one, if any.
func (db *DB) StartRun(runID string) (previous string, err error) {
	previous, err = db.GetMeta("current_run")
	if err != nil && !errors.Is(err, ErrNoMeta) {
		return "", err
	}
	if err := db.SaveMeta("current_run", runID); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	slog.Info("journal run started", "run_id", runID, "previous_run", previous)
	return previous, nil
}
