package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

type ContentService interface {
	CreateProposal(ctx context.Context, input CreateProposalInput) (*models.Proposal, error)
	CreateComment(ctx context.Context, input CreateCommentInput) (*models.Comment, error)
}

type CreateProposalInput struct {
	FractalID int    `json:"fractal_id"`
	RoundID   int    `json:"round_id"`
	GroupID   int    `json:"group_id"`
	CreatorID int    `json:"-"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

type CreateCommentInput struct {
	ProposalID int    `json:"-"`
	GroupID    int    `json:"group_id"`
	ParentID   *int   `json:"parent_id"`
	CreatorID  int    `json:"-"`
	Body       string `json:"body"`
}

type contentService struct {
	store  *repositories.Store
	logger *slog.Logger
}

func NewContentService(store *repositories.Store, logger *slog.Logger) ContentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &contentService{store: store, logger: logger}
}

// requireSeat checks that round is open, the group sits in that round and the
// member holds an active seat in it.
func requireSeat(ctx context.Context, store *repositories.Store, tx repositories.SQLExecutor, round *models.Round, groupID, memberID int) (*models.Group, error) {
	if !round.IsOpen() {
		return nil, ErrRoundClosed
	}
	group, err := store.Groups.GetByID(ctx, tx, groupID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if group.RoundID != round.ID {
		return nil, ErrGroupRoundMismatch
	}
	ok, err := store.Groups.IsActiveMember(ctx, tx, groupID, memberID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotGroupMember
	}
	return group, nil
}

func (s *contentService) CreateProposal(ctx context.Context, input CreateProposalInput) (*models.Proposal, error) {
	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if body == "" {
		return nil, ErrBodyRequired
	}

	proposal := &models.Proposal{
		FractalID: input.FractalID,
		RoundID:   input.RoundID,
		GroupID:   input.GroupID,
		CreatorID: input.CreatorID,
		Title:     title,
		Body:      body,
		Kind:      models.ProposalKindBase,
		Scores:    models.RoundScores{},
	}

	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		fractal, err := s.store.Fractals.GetByID(ctx, tx, input.FractalID)
		if err != nil {
			return mapRepoError(err)
		}
		round, err := s.store.Rounds.GetByIDForShare(ctx, tx, input.RoundID)
		if err != nil {
			return mapRepoError(err)
		}
		if round.FractalID != fractal.ID {
			return ErrRoundNotFound
		}
		if _, err := requireSeat(ctx, s.store, tx, round, input.GroupID, input.CreatorID); err != nil {
			return err
		}

		count, err := s.store.Proposals.CountByCreatorInRound(ctx, tx, round.ID, input.CreatorID)
		if err != nil {
			return err
		}
		if count >= fractal.Settings.WithDefaults().ProposalsPerUser {
			return ErrProposalLimitReached
		}
		return mapRepoError(s.store.Proposals.Create(ctx, tx, proposal))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "proposal created",
		slog.Int("proposal_id", proposal.ID),
		slog.Int("group_id", proposal.GroupID),
		slog.Int("creator_id", proposal.CreatorID),
	)
	return proposal, nil
}

// CreateComment accepts comments from any group of the proposal's current
// round; the comment is tagged with the author's group.
func (s *contentService) CreateComment(ctx context.Context, input CreateCommentInput) (*models.Comment, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, ErrBodyRequired
	}

	comment := &models.Comment{
		ProposalID: input.ProposalID,
		ParentID:   input.ParentID,
		GroupID:    input.GroupID,
		CreatorID:  input.CreatorID,
		Body:       body,
		Scores:     models.RoundScores{},
	}

	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		proposal, err := s.store.Proposals.GetByID(ctx, tx, input.ProposalID)
		if err != nil {
			return mapRepoError(err)
		}
		round, err := s.store.Rounds.GetByIDForShare(ctx, tx, proposal.RoundID)
		if err != nil {
			return mapRepoError(err)
		}
		if _, err := requireSeat(ctx, s.store, tx, round, input.GroupID, input.CreatorID); err != nil {
			return err
		}
		if input.ParentID != nil {
			parent, err := s.store.Comments.GetByID(ctx, tx, *input.ParentID)
			if err != nil {
				return mapRepoError(err)
			}
			if parent.ProposalID != proposal.ID {
				return ErrParentCommentMismatch
			}
		}
		return mapRepoError(s.store.Comments.Create(ctx, tx, comment))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "comment created",
		slog.Int("comment_id", comment.ID),
		slog.Int("proposal_id", comment.ProposalID),
	)
	return comment, nil
}
