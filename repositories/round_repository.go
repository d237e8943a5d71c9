package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/fractal-system/models"
)

var (
	ErrRoundNotFound      = errors.New("round not found")
	ErrRoundAlreadyClosed = errors.New("round already closed")
	ErrRoundLevelConflict = errors.New("round for this level already exists")
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	// GetByIDForShare reads the round and holds a share lock on its row until
	// the surrounding transaction ends. Concurrent Close waits for it.
	GetByIDForShare(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	// GetLatestOpenForUpdate returns the highest-level open round of a fractal
	// with a row lock, or ErrRoundNotFound.
	GetLatestOpenForUpdate(ctx context.Context, exec SQLExecutor, fractalID int) (*models.Round, error)
	ListByFractal(ctx context.Context, exec SQLExecutor, fractalID int) ([]models.Round, error)
	Close(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	ListExpired(ctx context.Context, exec SQLExecutor, now time.Time) ([]models.Round, error)
	ListHalfTimeDue(ctx context.Context, exec SQLExecutor, now time.Time) ([]models.Round, error)
	// MarkHalfTimeNotified reports false when another caller marked it first.
	MarkHalfTimeNotified(ctx context.Context, exec SQLExecutor, id int) (bool, error)
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const roundColumns = `id, fractal_id, level, status, started_at, deadline, ended_at, half_time_notified`

func scanRound(row rowScanner, rd *models.Round) error {
	return row.Scan(&rd.ID, &rd.FractalID, &rd.Level, &rd.Status, &rd.StartedAt, &rd.Deadline, &rd.EndedAt, &rd.HalfTimeNotified)
}

func (r *postgresRoundRepository) queryRounds(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.Round, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := make([]models.Round, 0)
	for rows.Next() {
		var rd models.Round
		if err := scanRound(rows, &rd); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rounds = append(rounds, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round rows: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) getOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Round, error) {
	rd := &models.Round{}
	if err := scanRound(r.getExecutor(exec).QueryRowContext(ctx, query, args...), rd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return rd, nil
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, rd *models.Round) error {
	query := `
		INSERT INTO rounds (fractal_id, level, status, started_at, deadline)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		rd.FractalID, rd.Level, rd.Status, rd.StartedAt, rd.Deadline,
	).Scan(&rd.ID)
	if err != nil {
		if isUniqueViolation(err, "rounds_fractal_level_key") {
			return ErrRoundLevelConflict
		}
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	return r.getOne(ctx, exec, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
}

func (r *postgresRoundRepository) GetByIDForShare(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	return r.getOne(ctx, exec, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR SHARE`, id)
}

func (r *postgresRoundRepository) GetLatestOpenForUpdate(ctx context.Context, exec SQLExecutor, fractalID int) (*models.Round, error) {
	return r.getOne(ctx, exec, `
		SELECT `+roundColumns+` FROM rounds
		WHERE fractal_id = $1 AND status = 'open'
		ORDER BY level DESC LIMIT 1
		FOR UPDATE`, fractalID)
}

func (r *postgresRoundRepository) ListByFractal(ctx context.Context, exec SQLExecutor, fractalID int) ([]models.Round, error) {
	rounds, err := r.queryRounds(ctx, exec,
		`SELECT `+roundColumns+` FROM rounds WHERE fractal_id = $1 ORDER BY level`, fractalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds of fractal %d: %w", fractalID, err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) Close(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE rounds SET status = 'closed', ended_at = $2
		WHERE id = $1 AND status = 'open'`, id, at)
	if err != nil {
		return fmt.Errorf("failed to close round %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundAlreadyClosed)
}

func (r *postgresRoundRepository) ListExpired(ctx context.Context, exec SQLExecutor, now time.Time) ([]models.Round, error) {
	rounds, err := r.queryRounds(ctx, exec, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status = 'open' AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline, id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rounds: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) ListHalfTimeDue(ctx context.Context, exec SQLExecutor, now time.Time) ([]models.Round, error) {
	rounds, err := r.queryRounds(ctx, exec, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status = 'open' AND NOT half_time_notified AND deadline IS NOT NULL
		  AND started_at + (deadline - started_at) / 2 <= $1
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list half-time rounds: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) MarkHalfTimeNotified(ctx context.Context, exec SQLExecutor, id int) (bool, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE rounds SET half_time_notified = TRUE
		WHERE id = $1 AND NOT half_time_notified`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark half time for round %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n > 0, nil
}
