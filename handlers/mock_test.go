package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/fractal-system/middleware"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/services"
)

// asMember emulates middleware.Authenticate for a fixed member id.
func asMember(id int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), jwt.MapClaims{"user_id": float64(id)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type mockFractalService struct {
	fractals map[int]*models.Fractal
	listed   services.ListFractalsInput
	joined   models.MemberInfo
	left     [2]int
	err      error
}

func (m *mockFractalService) CreateFractal(_ context.Context, input services.CreateFractalInput) (*models.Fractal, error) {
	if m.err != nil {
		return nil, m.err
	}
	f := &models.Fractal{ID: len(m.fractals) + 1, Name: input.Name, Status: models.FractalStatusWaiting}
	if input.Settings != nil {
		f.Settings = input.Settings.WithDefaults()
	}
	m.fractals[f.ID] = f
	return f, nil
}

func (m *mockFractalService) GetFractal(_ context.Context, id int) (*models.Fractal, error) {
	f, ok := m.fractals[id]
	if !ok {
		return nil, services.ErrFractalNotFound
	}
	return f, nil
}

func (m *mockFractalService) ListFractals(_ context.Context, filter services.ListFractalsInput) ([]models.Fractal, error) {
	m.listed = filter
	var out []models.Fractal
	for _, f := range m.fractals {
		if filter.Status == nil || f.Status == *filter.Status {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockFractalService) ListRounds(_ context.Context, fractalID int) ([]models.Round, error) {
	if _, ok := m.fractals[fractalID]; !ok {
		return nil, services.ErrFractalNotFound
	}
	return nil, nil
}

func (m *mockFractalService) JoinFractal(_ context.Context, fractalID int, info models.MemberInfo) (*models.Member, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.joined = info
	return &models.Member{ID: 100, Platform: info.Platform, ExternalID: info.ExternalID, DisplayName: info.DisplayName, ActiveFractalID: &fractalID}, nil
}

func (m *mockFractalService) LeaveFractal(_ context.Context, fractalID, memberID int) error {
	m.left = [2]int{fractalID, memberID}
	return m.err
}

func (m *mockFractalService) StartFractal(_ context.Context, fractalID int) (*models.Round, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Round{ID: 1, FractalID: fractalID, Status: models.RoundStatusOpen, StartedAt: time.Now()}, nil
}

type mockTournamentService struct {
	replaced services.ReplaceSeatInput
	err      error
}

func (m *mockTournamentService) CloseRound(_ context.Context, fractalID int) (*services.CloseRoundResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.CloseRoundResult{
		ClosedRound: models.Round{ID: 1, FractalID: fractalID, Status: models.RoundStatusClosed},
		Terminated:  true,
		Reason:      services.ReasonFewGroups,
	}, nil
}

func (m *mockTournamentService) CloseExpiredRounds(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *mockTournamentService) NotifyHalfTime(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *mockTournamentService) ReplaceSeat(_ context.Context, input services.ReplaceSeatInput) error {
	m.replaced = input
	return m.err
}

type mockTreeService struct {
	roundID   *int
	viewerID  *int
	refreshed int
}

func (m *mockTreeService) GetFractalTree(_ context.Context, fractalID int, roundID *int, viewerID *int) (*models.FractalTree, error) {
	if fractalID != 1 {
		return nil, services.ErrFractalNotFound
	}
	m.roundID, m.viewerID = roundID, viewerID
	return &models.FractalTree{Fractal: models.Fractal{ID: fractalID}}, nil
}

func (m *mockTreeService) RefreshRoundTree(_ context.Context, fractalID, roundID int) (*models.RoundTree, error) {
	if fractalID != 1 {
		return nil, services.ErrFractalNotFound
	}
	m.refreshed = roundID
	return &models.RoundTree{Round: models.Round{ID: roundID, FractalID: fractalID, Status: models.RoundStatusClosed}}, nil
}

func (m *mockTreeService) GetGroupStatus(_ context.Context, groupID int, viewerID *int) (*models.GroupStatus, error) {
	if groupID != 5 {
		return nil, services.ErrGroupNotFound
	}
	m.viewerID = viewerID
	return &models.GroupStatus{}, nil
}

type mockContentService struct {
	proposal services.CreateProposalInput
	comment  services.CreateCommentInput
	err      error
}

func (m *mockContentService) CreateProposal(_ context.Context, input services.CreateProposalInput) (*models.Proposal, error) {
	m.proposal = input
	if m.err != nil {
		return nil, m.err
	}
	return &models.Proposal{ID: 1, FractalID: input.FractalID, GroupID: input.GroupID, CreatorID: input.CreatorID, Title: input.Title, Kind: models.ProposalKindBase}, nil
}

func (m *mockContentService) CreateComment(_ context.Context, input services.CreateCommentInput) (*models.Comment, error) {
	m.comment = input
	if m.err != nil {
		return nil, m.err
	}
	return &models.Comment{ID: 1, ProposalID: input.ProposalID, ParentID: input.ParentID, CreatorID: input.CreatorID, Body: input.Body}, nil
}

type mockVoteService struct {
	rep services.RepresentativeVoteInput
	err error
}

func (m *mockVoteService) VoteProposal(_ context.Context, proposalID, voterID, score int) (*models.ProposalVote, error) {
	if m.err != nil {
		return nil, m.err
	}
	if score < models.MinProposalScore || score > models.MaxProposalScore {
		return nil, services.ErrScoreOutOfRange
	}
	return &models.ProposalVote{ProposalID: proposalID, VoterID: voterID, Score: score}, nil
}

func (m *mockVoteService) VoteComment(_ context.Context, commentID, voterID int, upvote bool) (*models.CommentVote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.CommentVote{CommentID: commentID, VoterID: voterID, Upvote: upvote}, nil
}

func (m *mockVoteService) VoteRepresentative(_ context.Context, input services.RepresentativeVoteInput) (*models.RepresentativeVote, error) {
	m.rep = input
	if m.err != nil {
		return nil, m.err
	}
	return &models.RepresentativeVote{GroupID: input.GroupID, RoundID: input.RoundID, VoterID: input.VoterID, CandidateID: input.CandidateID, Points: input.Points}, nil
}
