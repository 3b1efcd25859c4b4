package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

type sqliteBackend struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at dbPath for libraryID.
func NewSQLite(libraryID, dbPath string) (spi.Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc's driver serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	b := &sqliteBackend{db: db}
	if err := b.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	created, err := b.libraryCreatedAt()
	if err != nil {
		db.Close()
		return nil, err
	}
	return &store{id: libraryID, createdAt: created, b: b}, nil
}

func (b *sqliteBackend) runMigrations() error {
	migrations := []string{
		// Library metadata
		`CREATE TABLE IF NOT EXISTS library_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Files, folders and tags share one table keyed by kind
		`CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK(kind IN ('file', 'folder', 'tag')),
			id TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			deleted INTEGER NOT NULL DEFAULT 0,
			UNIQUE(kind, id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_records_kind_deleted ON records(kind, deleted)`,
	}
	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) libraryCreatedAt() (time.Time, error) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := b.db.Exec(`INSERT OR IGNORE INTO library_meta(key, value) VALUES ('created_at', ?)`, ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to write library metadata: %w", err)
	}
	var v string
	if err := b.db.QueryRow(`SELECT value FROM library_meta WHERE key = 'created_at'`).Scan(&v); err != nil {
		return time.Time{}, fmt.Errorf("failed to read library metadata: %w", err)
	}
	return time.Parse(time.RFC3339Nano, v)
}

func decodeRecord(raw string) (spi.Record, error) {
	rec := spi.Record{}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("corrupt record: %w", err)
	}
	return rec, nil
}

func (b *sqliteBackend) list(ctx context.Context, kind string, deleted bool) ([]spi.Record, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT data FROM records WHERE kind = ? AND deleted = ? ORDER BY seq`, kind, boolInt(deleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []spi.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) insert(ctx context.Context, kind string, rec spi.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO records(kind, id, data, deleted) VALUES (?, ?, ?, 0)`, kind, rec.ID(), string(raw))
	return err
}

func (b *sqliteBackend) get(ctx context.Context, kind, id string) (spi.Record, bool, error) {
	var raw string
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE kind = ? AND id = ?`, kind, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (b *sqliteBackend) put(ctx context.Context, kind, id string, rec spi.Record, deleted bool) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE records SET data = ?, deleted = ? WHERE kind = ? AND id = ?`, string(raw), boolInt(deleted), kind, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return spi.ErrNotFound
	}
	return nil
}

func (b *sqliteBackend) erase(ctx context.Context, kind, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, kind, id)
	return err
}

func (b *sqliteBackend) close() error { return b.db.Close() }

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
