// Package storage persists the change journal and completion flags to a
// local SQLite database. It implements flags.Store and the engine's change
// journal; the engine itself never depends on it.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/duetlabs/pairsync/pkg/flags"
	"github.com/duetlabs/pairsync/pkg/snapshot"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS completion_flags (
  id            INTEGER PRIMARY KEY,
  activity_type TEXT NOT NULL,
  session_id    TEXT NOT NULL,
  set_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(activity_type, session_id)
);
CREATE TABLE IF NOT EXISTS change_journal (
  id           INTEGER PRIMARY KEY,
  occurred_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  resource_key TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('added','updated','removed')),
  previous     TEXT,
  current      TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_time ON change_journal(occurred_at);
CREATE INDEX IF NOT EXISTS idx_journal_key ON change_journal(resource_key, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveFlag stores a completion flag. Idempotent: an existing flag for the
// pair keeps its original set_at.
func (d *DB) SaveFlag(ctx context.Context, f flags.Flag) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO completion_flags(activity_type, session_id, set_at) VALUES(?,?,?)
		 ON CONFLICT(activity_type, session_id) DO NOTHING`,
		f.ActivityType, f.SessionID, f.SetAt.UTC().Format(sqliteTimeLayout))
	return err
}

// DeleteFlag removes a completion flag. Deleting an absent flag is a no-op.
func (d *DB) DeleteFlag(ctx context.Context, activityType, sessionID string) error {
	_, err := d.sql.ExecContext(ctx,
		`DELETE FROM completion_flags WHERE activity_type = ? AND session_id = ?`,
		activityType, sessionID)
	return err
}

// ListFlags returns all stored completion flags.
func (d *DB) ListFlags(ctx context.Context) ([]flags.Flag, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT activity_type, session_id, set_at FROM completion_flags ORDER BY set_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flags.Flag
	for rows.Next() {
		var f flags.Flag
		var setAtStr string
		if err := rows.Scan(&f.ActivityType, &f.SessionID, &setAtStr); err != nil {
			return nil, err
		}
		f.SetAt = parseSQLiteTime(setAtStr)
		out = append(out, f)
	}
	return out, rows.Err()
}

// LogChanges appends change events to the journal.
func (d *DB) LogChanges(ctx context.Context, events []snapshot.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, ev := range events {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO change_journal(occurred_at, resource_key, change_type, previous, current) VALUES(CURRENT_TIMESTAMP,?,?,?,?)`,
			ev.Key, string(ev.Type), nullIfEmpty(string(ev.Previous)), nullIfEmpty(string(ev.Current)))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChangesSince returns journal entries at or after the given time, oldest
// first, capped at limit (0 = no cap).
func (d *DB) ChangesSince(ctx context.Context, since time.Time, limit int) ([]JournalEntry, error) {
	q := `SELECT occurred_at, resource_key, change_type, COALESCE(previous,''), COALESCE(current,'')
	      FROM change_journal WHERE occurred_at >= ? ORDER BY occurred_at`
	args := []interface{}{since.UTC().Format(sqliteTimeLayout)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return d.queryJournal(ctx, q, args...)
}

// ListRecentChanges returns the newest journal entries, newest first.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryJournal(ctx,
		`SELECT occurred_at, resource_key, change_type, COALESCE(previous,''), COALESCE(current,'')
		 FROM change_journal ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
}

func (d *DB) queryJournal(ctx context.Context, query string, args ...interface{}) ([]JournalEntry, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var occurredAtStr string
		if err := rows.Scan(&occurredAtStr, &e.ResourceKey, &e.ChangeType, &e.Previous, &e.Current); err != nil {
			return nil, err
		}
		e.OccurredAt = parseSQLiteTime(occurredAtStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// parseSQLiteTime handles SQLite's CURRENT_TIMESTAMP format with an RFC3339
// fallback.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
