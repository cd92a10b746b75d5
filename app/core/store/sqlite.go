package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

type DB struct {
	conn *sql.DB
	path string
}

func NewSQLiteDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "calagent.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	database := &DB{conn: conn, path: dbPath}
	if err := database.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return database, nil
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) initSchema() error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}

	version, err := readSchemaVersion(tx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("db schema version %d is newer than runtime version %d", version, currentSchemaVersion)
	}

	if err := applyMigrations(tx, version); err != nil {
		return err
	}
	if err := writeSchemaVersion(tx, currentSchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func readSchemaVersion(tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	return version, nil
}

func writeSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(
		`INSERT INTO schema_meta (key, value) VALUES ('version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(version),
	)
	return err
}

func applyMigrations(tx *sql.Tx, fromVersion int) error {
	for v := fromVersion + 1; v <= currentSchemaVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for schema version %d", v)
		}
		if err := migrate(tx); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", v, err)
		}
	}
	return nil
}

var migrations = map[int]func(*sql.Tx) error{
	1: func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS user_tokens (
				user_id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL DEFAULT '',
				expiry INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS dialogue_sessions (
				user_id TEXT PRIMARY KEY,
				active INTEGER NOT NULL DEFAULT 0,
				subject TEXT NOT NULL DEFAULT '',
				date TEXT NOT NULL DEFAULT '',
				time TEXT NOT NULL DEFAULT '',
				meridiem_assumed INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS turn_traces (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				channel_id TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				payload TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turn_traces_created ON turn_traces(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_turn_traces_user ON turn_traces(user_id, created_at)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	},
}
