package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	ioutils "github.com/handiism/deck-media/internal/io"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS assets (
	key         TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
)`

// sqliteStore keeps one row per entry so updates touch a single record.
type sqliteStore struct {
	db *sql.DB
}

func openSQLiteStore(path string) (*sqliteStore, error) {
	if err := ioutils.EnsureDir(dirOf(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Load() (map[string]Entry, error) {
	rows, err := s.db.Query(`SELECT key, path, size, recorded_at FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.Key, &e.Path, &e.Size, &ms); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		e.RecordedAt = time.UnixMilli(ms).UTC()
		entries[e.Key] = e
	}
	return entries, rows.Err()
}

func (s *sqliteStore) Put(e Entry, _ map[string]Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO assets(key, path, size, recorded_at) VALUES(?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET path=excluded.path, size=excluded.size, recorded_at=excluded.recorded_at`,
		e.Key, e.Path, e.Size, e.RecordedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) Delete(key string, _ map[string]Entry) error {
	_, err := s.db.Exec(`DELETE FROM assets WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM assets`)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
