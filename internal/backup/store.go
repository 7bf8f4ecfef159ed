package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/credentials"
	_ "modernc.org/sqlite"
)

// store keeps backup records in SQLite.
type store struct {
	db *sql.DB
}

func openStore(path string) (*store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		credentials TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	// Records written before backups were bound to a device cannot be
	// handed to anyone.
	if _, err := db.Exec(`DELETE FROM backups WHERE id = ?`, mainBackupID); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	return s.db.Close()
}

func (s *store) put(ctx context.Context, id string, creds credentials.Set, created, expires time.Time) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backups (id, credentials, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			credentials = excluded.credentials,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		id, string(raw), created.UnixMilli(), expires.UnixMilli())
	return err
}

func (s *store) delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	return err
}

// get returns the record for id if it expires after now.
func (s *store) get(ctx context.Context, id string, now time.Time) (credentials.Set, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT credentials FROM backups WHERE id = ? AND expires_at > ?`,
		id, now.UnixMilli(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	var creds credentials.Set
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return creds, nil
}
