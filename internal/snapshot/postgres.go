package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists snapshots in PostgreSQL, one JSONB row per user.
// Category order survives because the payload stores it as an array.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses an existing pool. The caller owns the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS financial_snapshots (
			user_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			last_synced_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init snapshot schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (Snapshot, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM financial_snapshots WHERE user_id=$1`,
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := decode(raw)
	if err != nil {
		return Snapshot{}, true, err
	}
	return snap, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO financial_snapshots (user_id, payload, last_synced_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET payload = EXCLUDED.payload,
		     last_synced_at = EXCLUDED.last_synced_at,
		     updated_at = now()`,
		snap.UserID,
		raw,
		snap.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(*Snapshot)) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin snapshot update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT payload FROM financial_snapshots WHERE user_id=$1 FOR UPDATE`,
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock snapshot: %w", err)
	}

	snap, err := decode(raw)
	if err != nil {
		return true, err
	}
	fn(&snap)
	next, err := encode(snap)
	if err != nil {
		return true, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE financial_snapshots SET payload=$2, updated_at=now() WHERE user_id=$1`,
		userID,
		next,
	); err != nil {
		return true, fmt.Errorf("update snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return true, fmt.Errorf("commit snapshot update: %w", err)
	}
	return true, nil
}

// Close is a no-op; the pool is shared and closed by its owner.
func (s *PostgresStore) Close() error { return nil }
