package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// connParams are applied by the driver to every connection it opens. WAL
// lets replay read a file while a runner is still recording into it.
const connParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1"

// migrations bring an older recordings file up to date. Entry i moves
// user_version from i to i+1.
var migrations = []string{
	// ReadMessages with a kind filter: equality on recording and kind,
	// rows already in seq order.
	`CREATE INDEX IF NOT EXISTS idx_messages_kind ON messages(recording_id, type_key, seq)`,
}

// schemaVersion is the user_version of a fully migrated recordings file.
var schemaVersion = len(migrations)

// layout lists the columns each recordings table must carry.
var layout = map[string][]string{
	"recordings": {"id", "path", "runner", "started_at", "stopped_at"},
	"messages":   {"recording_id", "seq", "pipeline", "channel", "type_key", "guid", "emitted_at", "payload"},
}

var (
	// ErrNotRecordings is returned by Open for a database whose tables
	// do not have the recordings layout.
	ErrNotRecordings = errors.New("not a recordings database")

	// ErrNewerRecordings is returned by Open for a file written by a newer
	// build.
	ErrNewerRecordings = errors.New("recordings database is newer than this build")
)

// Store holds recordings and their messages.
type Store struct {
	db *sql.DB
}

// Open opens the recordings database at path, creating it when missing,
// and migrates it to the current layout. path may be ":memory:".
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open recordings %s: %w", path, err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open recordings %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connParams
	}
	return path + "?" + connParams
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// prepare checks an existing file holds recordings, creates missing
// tables, and applies pending migrations in one transaction.
func prepare(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: version %d, want at most %d", ErrNewerRecordings, version, schemaVersion)
	}

	if err := checkTables(db); err != nil {
		return err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer tx.Rollback()

	for v := version; v < schemaVersion; v++ {
		if _, err := tx.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return tx.Commit()
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// checkTables rejects a file whose recordings or messages table predates
// or is unrelated to this layout, before anything is written to it. Tables
// that do not exist yet are fine.
func checkTables(db *sql.DB) error {
	for _, table := range []string{"recordings", "messages"} {
		have, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		if len(have) == 0 {
			continue
		}
		for _, col := range layout[table] {
			if !slices.Contains(have, col) {
				return fmt.Errorf("%w: table %s has no column %s", ErrNotRecordings, table, col)
			}
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("inspect %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
