package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/fractal-system/election"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
	"github.com/Dosada05/fractal-system/scoring"
	"golang.org/x/sync/errgroup"
)

// treeBuilder projects a round into its nested read model. It never writes.
type treeBuilder struct {
	store *repositories.Store
	now   Clock
}

// roundTree loads all groups of the round. Groups load in parallel on the
// pool, but one at a time inside a transaction since a *sql.Tx is a single
// connection.
func (b *treeBuilder) roundTree(ctx context.Context, exec repositories.SQLExecutor, round models.Round, viewerGroupID *int) (*models.RoundTree, error) {
	groups, err := b.store.Groups.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, err
	}

	trees := make([]models.GroupTree, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	if exec != nil {
		g.SetLimit(1)
	}
	for i, group := range groups {
		g.Go(func() error {
			t, err := b.groupTree(gctx, exec, round, group, viewerGroupID)
			if err != nil {
				return fmt.Errorf("failed to build group %d: %w", group.ID, err)
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.RoundTree{
		Round:   round,
		Groups:  trees,
		BuiltAt: b.now(),
	}, nil
}

func (b *treeBuilder) groupTree(ctx context.Context, exec repositories.SQLExecutor, round models.Round, group models.Group, viewerGroupID *int) (models.GroupTree, error) {
	members, err := b.store.Groups.ListMembers(ctx, exec, group.ID)
	if err != nil {
		return models.GroupTree{}, err
	}

	proposals, err := b.store.Proposals.ListByGroup(ctx, exec, group.ID)
	if err != nil {
		return models.GroupTree{}, err
	}
	scoring.RankProposals(proposals)

	proposalIDs := make([]int, len(proposals))
	for i, p := range proposals {
		proposalIDs[i] = p.ID
	}

	proposalVotes, err := b.store.Votes.ListProposalVotes(ctx, exec, proposalIDs)
	if err != nil {
		return models.GroupTree{}, err
	}
	votesByProposal := make(map[int][]models.ProposalVote, len(proposals))
	for _, v := range proposalVotes {
		votesByProposal[v.ProposalID] = append(votesByProposal[v.ProposalID], v)
	}

	comments, err := b.store.Comments.ListByProposals(ctx, exec, proposalIDs)
	if err != nil {
		return models.GroupTree{}, err
	}
	commentIDs := make([]int, len(comments))
	commentsByProposal := make(map[int][]models.Comment, len(proposals))
	for i, c := range comments {
		commentIDs[i] = c.ID
		commentsByProposal[c.ProposalID] = append(commentsByProposal[c.ProposalID], c)
	}

	commentVotes, err := b.store.Votes.ListCommentVotes(ctx, exec, commentIDs)
	if err != nil {
		return models.GroupTree{}, err
	}
	votesByComment := make(map[int][]models.CommentVote, len(comments))
	for _, v := range commentVotes {
		votesByComment[v.CommentID] = append(votesByComment[v.CommentID], v)
	}

	ballots, err := b.store.Votes.ListRepresentativeVotes(ctx, exec, group.ID, round.ID)
	if err != nil {
		return models.GroupTree{}, err
	}

	nodes := make([]models.ProposalNode, 0, len(proposals))
	for _, p := range proposals {
		pv := votesByProposal[p.ID]
		if pv == nil {
			pv = []models.ProposalVote{}
		}
		nodes = append(nodes, models.ProposalNode{
			Proposal: p,
			Votes:    pv,
			Comments: buildCommentForest(commentsByProposal[p.ID], votesByComment, round.Level, viewerGroupID),
		})
	}

	return models.GroupTree{
		Group:           group,
		Members:         members,
		Representatives: election.Tally(ballots, election.MaxRepresentatives),
		Proposals:       nodes,
	}, nil
}
