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
	ErrCommentNotFound   = errors.New("comment not found")
	ErrCommentInvalidRef = errors.New("invalid comment reference")
)

type CommentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, comment *models.Comment) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Comment, error)
	ListByProposals(ctx context.Context, exec SQLExecutor, proposalIDs []int) ([]models.Comment, error)
	UpdateScores(ctx context.Context, exec SQLExecutor, id int, scores models.RoundScores, total float64) error
}

type postgresCommentRepository struct {
	db *sql.DB
}

func NewPostgresCommentRepository(db *sql.DB) CommentRepository {
	return &postgresCommentRepository{db: db}
}

func (r *postgresCommentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const commentColumns = `id, proposal_id, parent_id, group_id, creator_id, body, round_scores, total_score, created_at`

func scanComment(row rowScanner, c *models.Comment) error {
	return row.Scan(&c.ID, &c.ProposalID, &c.ParentID, &c.GroupID, &c.CreatorID,
		&c.Body, &c.Scores, &c.TotalScore, &c.CreatedAt)
}

func (r *postgresCommentRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Comment) error {
	if c.Scores == nil {
		c.Scores = models.RoundScores{}
	}
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		INSERT INTO comments (proposal_id, parent_id, group_id, creator_id, body, round_scores, total_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		c.ProposalID, c.ParentID, c.GroupID, c.CreatorID, c.Body, c.Scores, c.TotalScore,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if _, ok := foreignKeyConstraint(err); ok {
			return ErrCommentInvalidRef
		}
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *postgresCommentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Comment, error) {
	c := &models.Comment{}
	if err := scanComment(r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, id), c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to get comment %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresCommentRepository) ListByProposals(ctx context.Context, exec SQLExecutor, proposalIDs []int) ([]models.Comment, error) {
	if len(proposalIDs) == 0 {
		return []models.Comment{}, nil
	}
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments
		WHERE proposal_id = ANY($1)
		ORDER BY created_at, id`, pq.Array(proposalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		if err := scanComment(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comment rows: %w", err)
	}
	return comments, nil
}

func (r *postgresCommentRepository) UpdateScores(ctx context.Context, exec SQLExecutor, id int, scores models.RoundScores, total float64) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE comments SET round_scores = $2, total_score = $3 WHERE id = $1`, id, scores, total)
	if err != nil {
		return fmt.Errorf("failed to update comment %d scores: %w", id, err)
	}
	return checkAffectedRows(result, ErrCommentNotFound)
}
