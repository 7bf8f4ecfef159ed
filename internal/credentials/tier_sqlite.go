package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTier is the primary tier: a structured table indexed by expiry.
type SQLiteTier struct {
	db *sql.DB
}

// OpenSQLiteTier opens (and migrates) the credential database at path.
func OpenSQLiteTier(path string) (*SQLiteTier, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t := &SQLiteTier{db: db}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return t, nil
}

func (t *SQLiteTier) migrate() error {
	_, err := t.db.Exec(`
	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		device_tag TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credentials_expires_at ON credentials(expires_at);
	`)
	return err
}

// Close closes the database.
func (t *SQLiteTier) Close() error {
	return t.db.Close()
}

func (t *SQLiteTier) Name() string { return "sqlite" }

func (t *SQLiteTier) Put(ctx context.Context, e Entry) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO credentials (id, type, value, created_at, expires_at, device_tag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			device_tag = excluded.device_tag`,
		string(e.ID), entryType, e.Value, e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli(), e.DeviceTag)
	if err != nil {
		return fmt.Errorf("put %s: %w", e.ID, err)
	}
	return nil
}

func (t *SQLiteTier) Get(ctx context.Context, id ID) (Entry, bool, error) {
	var (
		e                  Entry
		created, expiresAt int64
	)
	err := t.db.QueryRowContext(ctx, `
		SELECT value, created_at, expires_at, device_tag
		FROM credentials WHERE id = ? AND type = ?`,
		string(id), entryType,
	).Scan(&e.Value, &created, &expiresAt, &e.DeviceTag)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", id, err)
	}
	e.ID = id
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return e, true, nil
}

func (t *SQLiteTier) Delete(ctx context.Context, ids ...ID) error {
	for _, id := range ids {
		if _, err := t.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, string(id)); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

// SweepExpired deletes rows with expires_at <= now.
func (t *SQLiteTier) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return res.RowsAffected()
}
