package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SnapshotRepository persists the single working-set snapshot blob. The
// table holds at most one row; every save replaces the previous state.
type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save writes the snapshot blob, replacing any previous snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, data, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, data)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot blob and its write time. A missing
// snapshot returns (nil, zero, nil) so first boot starts empty.
func (r *SnapshotRepository) Load(ctx context.Context) ([]byte, time.Time, error) {
	var data []byte
	var updatedAt time.Time

	err := r.db.QueryRowContext(ctx, `
		SELECT data, updated_at FROM snapshots WHERE id = 1
	`).Scan(&data, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return data, updatedAt, nil
}
