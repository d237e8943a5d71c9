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
	ErrGroupNotFound           = errors.New("group not found")
	ErrGroupMembershipNotFound = errors.New("active group membership not found")
)

type GroupRepository interface {
	Create(ctx context.Context, exec SQLExecutor, group *models.Group) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Group, error)
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]models.Group, error)
	AddMembers(ctx context.Context, exec SQLExecutor, groupID int, memberIDs []int) error
	ListMembers(ctx context.Context, exec SQLExecutor, groupID int) ([]models.Member, error)
	IsActiveMember(ctx context.Context, exec SQLExecutor, groupID, memberID int) (bool, error)
	FindMemberGroup(ctx context.Context, exec SQLExecutor, roundID, memberID int) (*models.Group, error)
	// ReplaceMember soft-removes oldMemberID from the group, records who took
	// the seat and adds newMemberID as an active member.
	ReplaceMember(ctx context.Context, exec SQLExecutor, groupID, oldMemberID, newMemberID int, at time.Time) error
}

type postgresGroupRepository struct {
	db *sql.DB
}

func NewPostgresGroupRepository(db *sql.DB) GroupRepository {
	return &postgresGroupRepository{db: db}
}

func (r *postgresGroupRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const groupColumns = `id, round_id, fractal_id, level, created_at`

func scanGroup(row rowScanner, g *models.Group) error {
	return row.Scan(&g.ID, &g.RoundID, &g.FractalID, &g.Level, &g.CreatedAt)
}

func (r *postgresGroupRepository) Create(ctx context.Context, exec SQLExecutor, g *models.Group) error {
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		INSERT INTO groups (round_id, fractal_id, level)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		g.RoundID, g.FractalID, g.Level,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *postgresGroupRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Group, error) {
	g := &models.Group{}
	if err := scanGroup(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, id), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	return g, nil
}

// ListByRound returns groups in creation order.
func (r *postgresGroupRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]models.Group, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE round_id = $1 ORDER BY id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of round %d: %w", roundID, err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		var g models.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}
	return groups, nil
}

func (r *postgresGroupRepository) AddMembers(ctx context.Context, exec SQLExecutor, groupID int, memberIDs []int) error {
	if len(memberIDs) == 0 {
		return nil
	}
	_, err := r.getExecutor(exec).ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, member_id)
		SELECT $1, unnest($2::int[])
		ON CONFLICT (group_id, member_id) DO UPDATE SET left_at = NULL, replaced_by = NULL`,
		groupID, pq.Array(memberIDs))
	if err != nil {
		return fmt.Errorf("failed to add members to group %d: %w", groupID, err)
	}
	return nil
}

func (r *postgresGroupRepository) ListMembers(ctx context.Context, exec SQLExecutor, groupID int) ([]models.Member, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT m.id, m.platform, m.external_id, m.username, m.display_name, m.active_fractal_id, m.created_at
		FROM group_memberships gm
		JOIN members m ON m.id = gm.member_id
		WHERE gm.group_id = $1 AND gm.left_at IS NULL
		ORDER BY gm.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %d: %w", groupID, err)
	}
	return scanMembers(rows)
}

func (r *postgresGroupRepository) IsActiveMember(ctx context.Context, exec SQLExecutor, groupID, memberID int) (bool, error) {
	var ok bool
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_memberships
			WHERE group_id = $1 AND member_id = $2 AND left_at IS NULL
		)`, groupID, memberID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return ok, nil
}

func (r *postgresGroupRepository) FindMemberGroup(ctx context.Context, exec SQLExecutor, roundID, memberID int) (*models.Group, error) {
	g := &models.Group{}
	err := scanGroup(r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT g.id, g.round_id, g.fractal_id, g.level, g.created_at
		FROM groups g
		JOIN group_memberships gm ON gm.group_id = g.id
		WHERE g.round_id = $1 AND gm.member_id = $2 AND gm.left_at IS NULL
		LIMIT 1`, roundID, memberID), g)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to find group of member %d: %w", memberID, err)
	}
	return g, nil
}

func (r *postgresGroupRepository) ReplaceMember(ctx context.Context, exec SQLExecutor, groupID, oldMemberID, newMemberID int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE group_memberships SET left_at = $4, replaced_by = $3
		WHERE group_id = $1 AND member_id = $2 AND left_at IS NULL`,
		groupID, oldMemberID, newMemberID, at)
	if err != nil {
		return fmt.Errorf("failed to release seat in group %d: %w", groupID, err)
	}
	if err := checkAffectedRows(result, ErrGroupMembershipNotFound); err != nil {
		return err
	}
	return r.AddMembers(ctx, executor, groupID, []int{newMemberID})
}
