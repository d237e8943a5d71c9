package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/fractal-system/metrics"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

type VoteService interface {
	VoteProposal(ctx context.Context, proposalID, voterID, score int) (*models.ProposalVote, error)
	VoteComment(ctx context.Context, commentID, voterID int, upvote bool) (*models.CommentVote, error)
	VoteRepresentative(ctx context.Context, input RepresentativeVoteInput) (*models.RepresentativeVote, error)
}

type RepresentativeVoteInput struct {
	GroupID     int                         `json:"group_id"`
	RoundID     int                         `json:"round_id"`
	VoterID     int                         `json:"-"`
	CandidateID int                         `json:"candidate_id"`
	Points      models.RepresentativePoints `json:"points"`
}

type voteService struct {
	store   *repositories.Store
	metrics *metrics.Collectors
	logger  *slog.Logger
}

func NewVoteService(store *repositories.Store, collectors *metrics.Collectors, logger *slog.Logger) VoteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &voteService{store: store, metrics: collectors, logger: logger}
}

// Every vote runs in its own transaction holding a share lock on the target
// round, so a concurrent close either waits for the vote or the vote sees
// the closed round.

func (s *voteService) VoteProposal(ctx context.Context, proposalID, voterID, score int) (*models.ProposalVote, error) {
	if score < models.MinProposalScore || score > models.MaxProposalScore {
		return nil, ErrScoreOutOfRange
	}

	vote := &models.ProposalVote{ProposalID: proposalID, VoterID: voterID, Score: score}
	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		proposal, err := s.store.Proposals.GetByID(ctx, tx, proposalID)
		if err != nil {
			return mapRepoError(err)
		}
		round, err := s.store.Rounds.GetByIDForShare(ctx, tx, proposal.RoundID)
		if err != nil {
			return mapRepoError(err)
		}
		if _, err := requireSeat(ctx, s.store, tx, round, proposal.GroupID, voterID); err != nil {
			return err
		}
		vote.RoundID = round.ID
		return mapRepoError(s.store.Votes.UpsertProposalVote(ctx, tx, vote))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.VoteCast("proposal")
	s.logger.DebugContext(ctx, "proposal vote cast",
		slog.Int("proposal_id", proposalID), slog.Int("voter_id", voterID), slog.Int("score", score))
	return vote, nil
}

// VoteComment targets the round and group of the comment's proposal.
func (s *voteService) VoteComment(ctx context.Context, commentID, voterID int, upvote bool) (*models.CommentVote, error) {
	vote := &models.CommentVote{CommentID: commentID, VoterID: voterID, Upvote: upvote}
	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		comment, err := s.store.Comments.GetByID(ctx, tx, commentID)
		if err != nil {
			return mapRepoError(err)
		}
		proposal, err := s.store.Proposals.GetByID(ctx, tx, comment.ProposalID)
		if err != nil {
			return mapRepoError(err)
		}
		round, err := s.store.Rounds.GetByIDForShare(ctx, tx, proposal.RoundID)
		if err != nil {
			return mapRepoError(err)
		}
		if _, err := requireSeat(ctx, s.store, tx, round, proposal.GroupID, voterID); err != nil {
			return err
		}
		vote.RoundID = round.ID
		return mapRepoError(s.store.Votes.UpsertCommentVote(ctx, tx, vote))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.VoteCast("comment")
	return vote, nil
}

func (s *voteService) VoteRepresentative(ctx context.Context, input RepresentativeVoteInput) (*models.RepresentativeVote, error) {
	if !input.Points.Valid() {
		return nil, ErrInvalidPoints
	}

	vote := &models.RepresentativeVote{
		GroupID:     input.GroupID,
		RoundID:     input.RoundID,
		VoterID:     input.VoterID,
		CandidateID: input.CandidateID,
		Points:      input.Points,
	}
	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		round, err := s.store.Rounds.GetByIDForShare(ctx, tx, input.RoundID)
		if err != nil {
			return mapRepoError(err)
		}
		if _, err := requireSeat(ctx, s.store, tx, round, input.GroupID, input.VoterID); err != nil {
			return err
		}
		ok, err := s.store.Groups.IsActiveMember(ctx, tx, input.GroupID, input.CandidateID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCandidateNotInGroup
		}
		return mapRepoError(s.store.Votes.CastRepresentativeVote(ctx, tx, vote))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.VoteCast("representative")
	s.logger.DebugContext(ctx, "representative vote cast",
		slog.Int("group_id", input.GroupID),
		slog.Int("voter_id", input.VoterID),
		slog.Int("candidate_id", input.CandidateID),
		slog.Int("points", int(input.Points)),
	)
	return vote, nil
}
