package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/fundingradar/internal/ingest"
)

// SnapshotStore persists run snapshots in Postgres. Each run appends a row;
// LoadLatest returns the newest one so the pipeline can diff against it.
type SnapshotStore struct {
	pool *pgxpool.Pool
	// KeepLast bounds the table; 0 disables pruning.
	KeepLast int
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool, KeepLast: 30}
}

func (s *SnapshotStore) LoadLatest(ctx context.Context) (*ingest.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM snapshots ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: loading latest snapshot: %w", err)
	}

	var snap ingest.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("db: decoding snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap *ingest.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("db: encoding snapshot: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (generated_at, payload) VALUES ($1, $2)`,
		snap.GeneratedAt, payload,
	); err != nil {
		return fmt.Errorf("db: inserting snapshot: %w", err)
	}

	if s.KeepLast > 0 {
		if _, err := s.pool.Exec(ctx, `
			DELETE FROM snapshots WHERE id NOT IN (
				SELECT id FROM snapshots ORDER BY generated_at DESC LIMIT $1
			)`, s.KeepLast,
		); err != nil {
			return fmt.Errorf("db: pruning snapshots: %w", err)
		}
	}
	return nil
}
