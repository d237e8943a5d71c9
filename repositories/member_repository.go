package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/fractal-system/models"
	"github.com/lib/pq"
)

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrMembershipNotFound = errors.New("active fractal membership not found")
	ErrMemberInvalidRef   = errors.New("invalid member or fractal reference")
)

type MemberRepository interface {
	// Upsert finds the member by (platform, external_id), refreshing its
	// profile fields, or creates it.
	Upsert(ctx context.Context, exec SQLExecutor, info models.MemberInfo) (*models.Member, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Member, error)
	ListByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]models.Member, error)
	SetActiveFractal(ctx context.Context, exec SQLExecutor, memberIDs []int, fractalID *int) error
	// ReleaseFractal clears the active-fractal pointer of every member still
	// pointing at the fractal.
	ReleaseFractal(ctx context.Context, exec SQLExecutor, fractalID int) error

	// AddToFractal creates or reactivates a fractal membership. alreadyActive
	// reports whether an active membership existed before the call.
	AddToFractal(ctx context.Context, exec SQLExecutor, fractalID, memberID int) (membership *models.FractalMembership, alreadyActive bool, err error)
	RemoveFromFractal(ctx context.Context, exec SQLExecutor, fractalID, memberID int, at time.Time) error
	ListFractalMembers(ctx context.Context, exec SQLExecutor, fractalID int) ([]models.Member, error)
}

type postgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) MemberRepository {
	return &postgresMemberRepository{db: db}
}

func (r *postgresMemberRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const memberColumns = `id, platform, external_id, username, display_name, active_fractal_id, created_at`

func scanMember(row rowScanner, m *models.Member) error {
	return row.Scan(&m.ID, &m.Platform, &m.ExternalID, &m.Username, &m.DisplayName, &m.ActiveFractalID, &m.CreatedAt)
}

func scanMembers(rows *sql.Rows) ([]models.Member, error) {
	defer rows.Close()
	members := make([]models.Member, 0)
	for rows.Next() {
		var m models.Member
		if err := scanMember(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (r *postgresMemberRepository) Upsert(ctx context.Context, exec SQLExecutor, info models.MemberInfo) (*models.Member, error) {
	query := `
		INSERT INTO members (platform, external_id, username, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform, external_id) DO UPDATE
		SET username = EXCLUDED.username, display_name = EXCLUDED.display_name
		RETURNING ` + memberColumns

	m := &models.Member{}
	err := scanMember(r.getExecutor(exec).QueryRowContext(ctx, query,
		info.Platform, info.ExternalID, info.Username, info.DisplayName,
	), m)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert member %s/%s: %w", info.Platform, info.ExternalID, err)
	}
	return m, nil
}

func (r *postgresMemberRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Member, error) {
	m := &models.Member{}
	err := scanMember(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMemberRepository) ListByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]models.Member, error) {
	if len(ids) == 0 {
		return []models.Member{}, nil
	}
	rows, err := r.getExecutor(exec).QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return scanMembers(rows)
}

func (r *postgresMemberRepository) SetActiveFractal(ctx context.Context, exec SQLExecutor, memberIDs []int, fractalID *int) error {
	if len(memberIDs) == 0 {
		return nil
	}
	_, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE members SET active_fractal_id = $2 WHERE id = ANY($1)`, pq.Array(memberIDs), fractalID)
	if err != nil {
		return fmt.Errorf("failed to set active fractal: %w", err)
	}
	return nil
}

func (r *postgresMemberRepository) ReleaseFractal(ctx context.Context, exec SQLExecutor, fractalID int) error {
	_, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE members SET active_fractal_id = NULL WHERE active_fractal_id = $1`, fractalID)
	if err != nil {
		return fmt.Errorf("failed to release members of fractal %d: %w", fractalID, err)
	}
	return nil
}

func (r *postgresMemberRepository) AddToFractal(ctx context.Context, exec SQLExecutor, fractalID, memberID int) (*models.FractalMembership, bool, error) {
	// prev is evaluated against the snapshot taken before the upsert runs.
	query := `
		WITH prev AS (
			SELECT left_at FROM fractal_memberships WHERE fractal_id = $1 AND member_id = $2
		)
		INSERT INTO fractal_memberships (fractal_id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (fractal_id, member_id) DO UPDATE
		SET left_at = NULL,
		    joined_at = CASE WHEN fractal_memberships.left_at IS NULL
		                     THEN fractal_memberships.joined_at ELSE now() END
		RETURNING id, fractal_id, member_id, joined_at, left_at,
		          EXISTS (SELECT 1 FROM prev WHERE left_at IS NULL)`

	fm := &models.FractalMembership{}
	var alreadyActive bool
	err := r.getExecutor(exec).QueryRowContext(ctx, query, fractalID, memberID).Scan(
		&fm.ID, &fm.FractalID, &fm.MemberID, &fm.JoinedAt, &fm.LeftAt, &alreadyActive,
	)
	if err != nil {
		if _, ok := foreignKeyConstraint(err); ok {
			return nil, false, ErrMemberInvalidRef
		}
		return nil, false, fmt.Errorf("failed to add member %d to fractal %d: %w", memberID, fractalID, err)
	}
	return fm, alreadyActive, nil
}

func (r *postgresMemberRepository) RemoveFromFractal(ctx context.Context, exec SQLExecutor, fractalID, memberID int, at time.Time) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE fractal_memberships SET left_at = $3
		WHERE fractal_id = $1 AND member_id = $2 AND left_at IS NULL`,
		fractalID, memberID, at)
	if err != nil {
		return fmt.Errorf("failed to remove member %d from fractal %d: %w", memberID, fractalID, err)
	}
	return checkAffectedRows(result, ErrMembershipNotFound)
}

// ListFractalMembers returns active members ordered by join time.
func (r *postgresMemberRepository) ListFractalMembers(ctx context.Context, exec SQLExecutor, fractalID int) ([]models.Member, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT m.id, m.platform, m.external_id, m.username, m.display_name, m.active_fractal_id, m.created_at
		FROM fractal_memberships fm
		JOIN members m ON m.id = fm.member_id
		WHERE fm.fractal_id = $1 AND fm.left_at IS NULL
		ORDER BY fm.joined_at, m.id`, fractalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fractal members: %w", err)
	}
	return scanMembers(rows)
}
