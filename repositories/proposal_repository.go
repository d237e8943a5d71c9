package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/fractal-system/models"
	"github.com/lib/pq"
)

var (
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrProposalInvalidRef = errors.New("invalid proposal reference")
)

type ProposalRepository interface {
	Create(ctx context.Context, exec SQLExecutor, proposal *models.Proposal) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Proposal, error)
	ListByGroup(ctx context.Context, exec SQLExecutor, groupID int) ([]models.Proposal, error)
	CountByCreatorInRound(ctx context.Context, exec SQLExecutor, roundID, creatorID int) (int, error)
	UpdateScores(ctx context.Context, exec SQLExecutor, id int, scores models.RoundScores, total float64) error
	// TopByGroup ranks by total score desc, then creation time asc.
	TopByGroup(ctx context.Context, exec SQLExecutor, groupID, limit int) ([]models.Proposal, error)
	// MoveToGroup re-parents proposals to another round's group.
	MoveToGroup(ctx context.Context, exec SQLExecutor, ids []int, roundID, groupID int, kind models.ProposalKind) error
}

type postgresProposalRepository struct {
	db *sql.DB
}

func NewPostgresProposalRepository(db *sql.DB) ProposalRepository {
	return &postgresProposalRepository{db: db}
}

func (r *postgresProposalRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const proposalColumns = `id, fractal_id, round_id, group_id, creator_id, title, body, kind, round_scores, total_score, created_at`

func scanProposal(row rowScanner, p *models.Proposal) error {
	return row.Scan(&p.ID, &p.FractalID, &p.RoundID, &p.GroupID, &p.CreatorID,
		&p.Title, &p.Body, &p.Kind, &p.Scores, &p.TotalScore, &p.CreatedAt)
}

func (r *postgresProposalRepository) queryProposals(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.Proposal, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]models.Proposal, 0)
	for rows.Next() {
		var p models.Proposal
		if err := scanProposal(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan proposal row: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposal rows: %w", err)
	}
	return proposals, nil
}

func (r *postgresProposalRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Proposal) error {
	if p.Scores == nil {
		p.Scores = models.RoundScores{}
	}
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		INSERT INTO proposals (fractal_id, round_id, group_id, creator_id, title, body, kind, round_scores, total_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		p.FractalID, p.RoundID, p.GroupID, p.CreatorID, p.Title, p.Body, p.Kind, p.Scores, p.TotalScore,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if _, ok := foreignKeyConstraint(err); ok {
			return ErrProposalInvalidRef
		}
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

func (r *postgresProposalRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Proposal, error) {
	p := &models.Proposal{}
	if err := scanProposal(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id), p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresProposalRepository) ListByGroup(ctx context.Context, exec SQLExecutor, groupID int) ([]models.Proposal, error) {
	return r.queryProposals(ctx, exec, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE group_id = $1
		ORDER BY total_score DESC, created_at, id`, groupID)
}

func (r *postgresProposalRepository) CountByCreatorInRound(ctx context.Context, exec SQLExecutor, roundID, creatorID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM proposals
		WHERE round_id = $1 AND creator_id = $2 AND kind = 'base'`, roundID, creatorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return n, nil
}

func (r *postgresProposalRepository) UpdateScores(ctx context.Context, exec SQLExecutor, id int, scores models.RoundScores, total float64) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE proposals SET round_scores = $2, total_score = $3 WHERE id = $1`, id, scores, total)
	if err != nil {
		return fmt.Errorf("failed to update proposal %d scores: %w", id, err)
	}
	return checkAffectedRows(result, ErrProposalNotFound)
}

func (r *postgresProposalRepository) TopByGroup(ctx context.Context, exec SQLExecutor, groupID, limit int) ([]models.Proposal, error) {
	if limit <= 0 {
		return []models.Proposal{}, nil
	}
	return r.queryProposals(ctx, exec, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE group_id = $1
		ORDER BY total_score DESC, created_at, id
		LIMIT $2`, groupID, limit)
}

func (r *postgresProposalRepository) MoveToGroup(ctx context.Context, exec SQLExecutor, ids []int, roundID, groupID int, kind models.ProposalKind) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE proposals SET round_id = $2, group_id = $3, kind = $4
		WHERE id = ANY($1)`, pq.Array(ids), roundID, groupID, kind)
	if err != nil {
		return fmt.Errorf("failed to move proposals to group %d: %w", groupID, err)
	}
	return nil
}
