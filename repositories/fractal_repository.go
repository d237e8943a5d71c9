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
	ErrFractalNotFound       = errors.New("fractal not found")
	ErrFractalNameConflict   = errors.New("fractal name already taken")
	ErrFractalStatusConflict = errors.New("fractal is not in the expected status")
)

type ListFractalsFilter struct {
	Status *models.FractalStatus
	Limit  int
	Offset int
}

type FractalRepository interface {
	Create(ctx context.Context, exec SQLExecutor, fractal *models.Fractal) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Fractal, error)
	List(ctx context.Context, filter ListFractalsFilter) ([]models.Fractal, error)
	// MarkStarted moves a waiting fractal to in_progress. It fails with
	// ErrFractalStatusConflict when the fractal was not waiting.
	MarkStarted(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	MarkClosed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	// Lock takes a transaction-scoped advisory lock keyed by the fractal id.
	Lock(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresFractalRepository struct {
	db *sql.DB
}

func NewPostgresFractalRepository(db *sql.DB) FractalRepository {
	return &postgresFractalRepository{db: db}
}

func (r *postgresFractalRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const fractalColumns = `id, name, description, start_time, status, settings, created_at, started_at, closed_at`

func scanFractal(row rowScanner, f *models.Fractal) error {
	return row.Scan(
		&f.ID, &f.Name, &f.Description, &f.StartTime, &f.Status, &f.Settings,
		&f.CreatedAt, &f.StartedAt, &f.ClosedAt,
	)
}

func (r *postgresFractalRepository) Create(ctx context.Context, exec SQLExecutor, f *models.Fractal) error {
	query := `
		INSERT INTO fractals (name, description, start_time, status, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		f.Name, f.Description, f.StartTime, f.Status, f.Settings,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "fractals_name_key") {
			return ErrFractalNameConflict
		}
		return fmt.Errorf("failed to create fractal: %w", err)
	}
	return nil
}

func (r *postgresFractalRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Fractal, error) {
	query := `SELECT ` + fractalColumns + ` FROM fractals WHERE id = $1`

	f := &models.Fractal{}
	if err := scanFractal(r.getExecutor(exec).QueryRowContext(ctx, query, id), f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFractalNotFound
		}
		return nil, fmt.Errorf("failed to get fractal %d: %w", id, err)
	}
	return f, nil
}

func (r *postgresFractalRepository) List(ctx context.Context, filter ListFractalsFilter) ([]models.Fractal, error) {
	query := `SELECT ` + fractalColumns + ` FROM fractals WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY start_time DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fractals: %w", err)
	}
	defer rows.Close()

	fractals := make([]models.Fractal, 0)
	for rows.Next() {
		var f models.Fractal
		if err := scanFractal(rows, &f); err != nil {
			return nil, fmt.Errorf("failed to scan fractal row: %w", err)
		}
		fractals = append(fractals, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fractal rows: %w", err)
	}
	return fractals, nil
}

func (r *postgresFractalRepository) MarkStarted(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	query := `
		UPDATE fractals SET status = 'in_progress', started_at = $2
		WHERE id = $1 AND status = 'waiting'`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to start fractal %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrFractalStatusConflict)
}

func (r *postgresFractalRepository) MarkClosed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	query := `
		UPDATE fractals SET status = 'closed', closed_at = $2
		WHERE id = $1 AND status = 'in_progress'`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to close fractal %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrFractalStatusConflict)
}

func (r *postgresFractalRepository) Lock(ctx context.Context, exec SQLExecutor, id int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(id)); err != nil {
		return fmt.Errorf("failed to lock fractal %d: %w", id, err)
	}
	return nil
}
