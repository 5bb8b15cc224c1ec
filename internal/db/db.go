package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is bumped whenever the tables below change shape.
const SchemaVersion = 1

var ErrNewerSchema = errors.New("database schema is newer than this build")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		next_seq INTEGER NOT NULL DEFAULT 1
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
		UNIQUE(chat_id, seq)
	);`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_seq ON messages(chat_id, seq);`,
}

func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "murmur", "murmur.db"), nil
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return open(path)
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory() (*sql.DB, error) {
	return open(":memory:")
}

// OpenOrRecover opens the database at path. A file that cannot be opened or
// migrated is moved aside and replaced with an empty database, so a corrupt
// store never blocks startup.
func OpenOrRecover(path string) (*sql.DB, error) {
	db, err := Open(path)
	if err == nil {
		return db, nil
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	slog.Warn("database unusable, starting with an empty one", "path", path, "moved_to", aside, "error", err)
	if rerr := os.Rename(path, aside); rerr != nil && !os.IsNotExist(rerr) {
		return nil, fmt.Errorf("moving corrupt database aside: %w", rerr)
	}
	return Open(path)
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer at a time; a single connection also keeps
	// in-memory databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := checkVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func checkVersion(db *sql.DB) error {
	var raw string
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(
			"INSERT INTO meta(key, value) VALUES('schema_version', ?)",
			strconv.Itoa(SchemaVersion),
		)
		return err
	}
	if err != nil {
		return err
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: found %d, support %d", ErrNewerSchema, v, SchemaVersion)
	}
	return nil
}
