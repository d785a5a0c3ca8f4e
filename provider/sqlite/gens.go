package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	gen "github.com/unkn0wn-root/statesync/genstore"
)

// GenStore keeps generations in the "gens" table of a Provider's database.
// It does not own the database; close the Provider instead.
type GenStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ gen.GenStore = (*GenStore)(nil)

// Gens returns the GenStore sharing p's database.
func (p *Provider) Gens() *GenStore {
	return &GenStore{db: p.db, now: func() time.Time { return p.now() }}
}

func (s *GenStore) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	var g int64
	err := s.db.QueryRowContext(ctx, `SELECT gen FROM gens WHERE key = ?`, storageKey).Scan(&g)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(g), nil
}

// SnapshotMany reads every key in one query. Missing keys map to 0.
func (s *GenStore) SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(storageKeys))
	if len(storageKeys) == 0 {
		return out, nil
	}
	args := make([]any, len(storageKeys))
	for i, k := range storageKeys {
		args[i] = k
		out[k] = 0
	}
	q := `SELECT key, gen FROM gens WHERE key IN (?` + strings.Repeat(`, ?`, len(storageKeys)-1) + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			g int64
		)
		if err := rows.Scan(&k, &g); err != nil {
			return nil, err
		}
		out[k] = uint64(g)
	}
	return out, rows.Err()
}

// Bump increments the generation in a single upsert.
func (s *GenStore) Bump(ctx context.Context, storageKey string) (uint64, error) {
	var g int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO gens (key, gen, updated_at) VALUES (?, 1, ?)
ON CONFLICT(key) DO UPDATE SET gen = gen + 1, updated_at = excluded.updated_at
RETURNING gen`, storageKey, s.now().UnixNano()).Scan(&g)
	if err != nil {
		return 0, err
	}
	return uint64(g), nil
}

// Cleanup deletes generations not bumped within retention. Retention must
// outlive every stored result, or a pruned key can revalidate one.
func (s *GenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention).UnixNano()
	_, _ = s.db.Exec(`DELETE FROM gens WHERE updated_at < ?`, cutoff)
}

// Close is a no-op; the Provider owns the database.
func (s *GenStore) Close(context.Context) error { return nil }
