package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrSnapshotNotFound = errors.New("round snapshot not found")

// SnapshotRepository persists the JSON tree of a closed round.
type SnapshotRepository interface {
	Save(ctx context.Context, exec SQLExecutor, roundID int, payload []byte) error
	Get(ctx context.Context, exec SQLExecutor, roundID int) (payload []byte, archiveURL *string, err error)
	SetArchiveURL(ctx context.Context, exec SQLExecutor, roundID int, url string) error
}

type postgresSnapshotRepository struct {
	db *sql.DB
}

func NewPostgresSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &postgresSnapshotRepository{db: db}
}

func (r *postgresSnapshotRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresSnapshotRepository) Save(ctx context.Context, exec SQLExecutor, roundID int, payload []byte) error {
	_, err := r.getExecutor(exec).ExecContext(ctx, `
		INSERT INTO round_snapshots (round_id, payload)
		VALUES ($1, $2)
		ON CONFLICT (round_id) DO UPDATE SET payload = EXCLUDED.payload, created_at = now()`,
		roundID, payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot of round %d: %w", roundID, err)
	}
	return nil
}

func (r *postgresSnapshotRepository) Get(ctx context.Context, exec SQLExecutor, roundID int) ([]byte, *string, error) {
	var (
		payload []byte
		url     *string
	)
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT payload, archive_url FROM round_snapshots WHERE round_id = $1`, roundID,
	).Scan(&payload, &url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrSnapshotNotFound
		}
		return nil, nil, fmt.Errorf("failed to get snapshot of round %d: %w", roundID, err)
	}
	return payload, url, nil
}

func (r *postgresSnapshotRepository) SetArchiveURL(ctx context.Context, exec SQLExecutor, roundID int, url string) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE round_snapshots SET archive_url = $2 WHERE round_id = $1`, roundID, url)
	if err != nil {
		return fmt.Errorf("failed to set archive url of round %d: %w", roundID, err)
	}
	return checkAffectedRows(result, ErrSnapshotNotFound)
}
