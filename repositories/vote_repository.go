package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/fractal-system/models"
	"github.com/lib/pq"
)

var ErrVoteInvalidRef = errors.New("invalid vote reference")

type VoteRepository interface {
	// UpsertProposalVote stores the voter's score, replacing an earlier one.
	UpsertProposalVote(ctx context.Context, exec SQLExecutor, vote *models.ProposalVote) error
	ListProposalVotes(ctx context.Context, exec SQLExecutor, proposalIDs []int) ([]models.ProposalVote, error)

	UpsertCommentVote(ctx context.Context, exec SQLExecutor, vote *models.CommentVote) error
	ListCommentVotes(ctx context.Context, exec SQLExecutor, commentIDs []int) ([]models.CommentVote, error)

	// CastRepresentativeVote gives candidate the voter's tier for the round.
	// The tier replaces whoever held it before, and any other tier the voter
	// had given the same candidate is withdrawn.
	CastRepresentativeVote(ctx context.Context, exec SQLExecutor, vote *models.RepresentativeVote) error
	ListRepresentativeVotes(ctx context.Context, exec SQLExecutor, groupID, roundID int) ([]models.RepresentativeVote, error)
}

type postgresVoteRepository struct {
	db *sql.DB
}

func NewPostgresVoteRepository(db *sql.DB) VoteRepository {
	return &postgresVoteRepository{db: db}
}

func (r *postgresVoteRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresVoteRepository) handleVoteError(err error, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := foreignKeyConstraint(err); ok {
		return ErrVoteInvalidRef
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func (r *postgresVoteRepository) UpsertProposalVote(ctx context.Context, exec SQLExecutor, v *models.ProposalVote) error {
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		INSERT INTO proposal_votes (proposal_id, voter_id, round_id, score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, voter_id) DO UPDATE
		SET score = EXCLUDED.score, round_id = EXCLUDED.round_id, updated_at = now()
		RETURNING id, created_at, updated_at`,
		v.ProposalID, v.VoterID, v.RoundID, v.Score,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	return r.handleVoteError(err, "upsert proposal vote")
}

func (r *postgresVoteRepository) ListProposalVotes(ctx context.Context, exec SQLExecutor, proposalIDs []int) ([]models.ProposalVote, error) {
	if len(proposalIDs) == 0 {
		return []models.ProposalVote{}, nil
	}
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT id, proposal_id, voter_id, round_id, score, created_at, updated_at
		FROM proposal_votes
		WHERE proposal_id = ANY($1)
		ORDER BY id`, pq.Array(proposalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal votes: %w", err)
	}
	defer rows.Close()

	votes := make([]models.ProposalVote, 0)
	for rows.Next() {
		var v models.ProposalVote
		if err := rows.Scan(&v.ID, &v.ProposalID, &v.VoterID, &v.RoundID, &v.Score, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proposal vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (r *postgresVoteRepository) UpsertCommentVote(ctx context.Context, exec SQLExecutor, v *models.CommentVote) error {
	err := r.getExecutor(exec).QueryRowContext(ctx, `
		INSERT INTO comment_votes (comment_id, voter_id, round_id, upvote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (comment_id, voter_id) DO UPDATE
		SET upvote = EXCLUDED.upvote, round_id = EXCLUDED.round_id, updated_at = now()
		RETURNING id, created_at, updated_at`,
		v.CommentID, v.VoterID, v.RoundID, v.Upvote,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	return r.handleVoteError(err, "upsert comment vote")
}

func (r *postgresVoteRepository) ListCommentVotes(ctx context.Context, exec SQLExecutor, commentIDs []int) ([]models.CommentVote, error) {
	if len(commentIDs) == 0 {
		return []models.CommentVote{}, nil
	}
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT id, comment_id, voter_id, round_id, upvote, created_at, updated_at
		FROM comment_votes
		WHERE comment_id = ANY($1)
		ORDER BY id`, pq.Array(commentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list comment votes: %w", err)
	}
	defer rows.Close()

	votes := make([]models.CommentVote, 0)
	for rows.Next() {
		var v models.CommentVote
		if err := rows.Scan(&v.ID, &v.CommentID, &v.VoterID, &v.RoundID, &v.Upvote, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (r *postgresVoteRepository) CastRepresentativeVote(ctx context.Context, exec SQLExecutor, v *models.RepresentativeVote) error {
	executor := r.getExecutor(exec)

	_, err := executor.ExecContext(ctx, `
		DELETE FROM representative_votes
		WHERE group_id = $1 AND round_id = $2 AND voter_id = $3 AND candidate_id = $4 AND points <> $5`,
		v.GroupID, v.RoundID, v.VoterID, v.CandidateID, v.Points)
	if err != nil {
		return fmt.Errorf("failed to withdraw previous tier: %w", err)
	}

	err = executor.QueryRowContext(ctx, `
		INSERT INTO representative_votes (group_id, round_id, voter_id, candidate_id, points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, round_id, voter_id, points) DO UPDATE
		SET candidate_id = EXCLUDED.candidate_id, created_at = now()
		RETURNING id, created_at`,
		v.GroupID, v.RoundID, v.VoterID, v.CandidateID, v.Points,
	).Scan(&v.ID, &v.CreatedAt)
	return r.handleVoteError(err, "cast representative vote")
}

func (r *postgresVoteRepository) ListRepresentativeVotes(ctx context.Context, exec SQLExecutor, groupID, roundID int) ([]models.RepresentativeVote, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, `
		SELECT id, group_id, round_id, voter_id, candidate_id, points, created_at
		FROM representative_votes
		WHERE group_id = $1 AND round_id = $2
		ORDER BY id`, groupID, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list representative votes: %w", err)
	}
	defer rows.Close()

	votes := make([]models.RepresentativeVote, 0)
	for rows.Next() {
		var v models.RepresentativeVote
		if err := rows.Scan(&v.ID, &v.GroupID, &v.RoundID, &v.VoterID, &v.CandidateID, &v.Points, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan representative vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
