// Package sqlite implements a file-backed Provider on modernc.org/sqlite, so
// a CLI can hydrate query results across runs without an external server.
// Gens returns a GenStore in the same database; use it with the Provider so
// an invalidation in one run hides stored results from every later run.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	pr "github.com/unkn0wn-root/statesync/provider"
)

//go:embed schema.sql
var schemaSQL string

// Provider stores frames in the "results" table.
type Provider struct {
	db  *sql.DB
	now func() time.Time

	closeOnce sync.Once
	closeErr  error
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// Path of the database file; parent directories are created.
	// ":memory:" keeps everything in memory.
	Path string
}

func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite provider: empty path")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite provider: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite provider: open: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite provider: schema: %w", err)
	}
	return &Provider{db: db, now: time.Now}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM results WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt > 0 && p.now().UnixNano() >= expiresAt {
		// expired: drop lazily
		_, _ = p.db.ExecContext(ctx, `DELETE FROM results WHERE key = ? AND expires_at = ?`, key, expiresAt)
		return nil, false, nil
	}
	return value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = p.now().Add(ttl).UnixNano()
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO results (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key)
	return err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (p *Provider) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM results WHERE expires_at > 0 AND expires_at <= ?`, p.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close is idempotent.
func (p *Provider) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.db.Close()
	})
	return p.closeErr
}
