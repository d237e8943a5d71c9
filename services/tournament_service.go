package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/fractal-system/circles"
	"github.com/Dosada05/fractal-system/election"
	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/metrics"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
	"github.com/Dosada05/fractal-system/scoring"
)

// Reasons reported when a fractal ends.
const (
	ReasonFewGroups   = "two_or_fewer_groups"
	ReasonNoDelegates = "no_delegates"
)

type TournamentService interface {
	// CloseRound scores, elects and closes the highest open round of the
	// fractal, then either promotes delegates into the next round or ends
	// the fractal. It is all-or-nothing.
	CloseRound(ctx context.Context, fractalID int) (*CloseRoundResult, error)
	// CloseExpiredRounds closes every open round whose deadline has passed.
	CloseExpiredRounds(ctx context.Context, now time.Time) (int, error)
	// NotifyHalfTime announces rounds that reached half of their duration,
	// once per round.
	NotifyHalfTime(ctx context.Context, now time.Time) (int, error)
	// ReplaceSeat hands a seat in an open round to another fractal member.
	// The old seat keeps a replaced_by pointer to the newcomer.
	ReplaceSeat(ctx context.Context, input ReplaceSeatInput) error
}

type ReplaceSeatInput struct {
	GroupID       int `json:"-"`
	MemberID      int `json:"member_id"`
	ReplacementID int `json:"replacement_id"`
}

type GroupElection struct {
	GroupID   int                           `json:"group_id"`
	Ranked    []models.RankedRepresentative `json:"ranked"`
	Delegates []int                         `json:"delegates"`
}

type CloseRoundResult struct {
	ClosedRound models.Round    `json:"closed_round"`
	NextRound   *models.Round   `json:"next_round"`
	Elections   []GroupElection `json:"elections"`
	Terminated  bool            `json:"terminated"`
	Reason      string          `json:"reason,omitempty"`
}

type tournamentService struct {
	store     *repositories.Store
	promoter  circles.GroupGenerator
	builder   *treeBuilder
	cache     *TreeCache
	publisher EventPublisher
	metrics   *metrics.Collectors
	logger    *slog.Logger
	now       Clock
}

func NewTournamentService(
	store *repositories.Store,
	cache *TreeCache,
	publisher EventPublisher,
	collectors *metrics.Collectors,
	logger *slog.Logger,
) TournamentService {
	if cache == nil {
		cache = NewTreeCache(0)
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tournamentService{
		store:     store,
		promoter:  circles.NewSequentialGenerator(),
		builder:   &treeBuilder{store: store, now: systemClock},
		cache:     cache,
		publisher: publisher,
		metrics:   collectors,
		logger:    logger,
		now:       systemClock,
	}
}

// closeOutcome collects what happened inside the transaction so events go
// out only after commit.
type closeOutcome struct {
	result   CloseRoundResult
	scored   []events.ProposalScoredEvent
	seats    []events.GroupAssignment
	groups   int
	snapshot []byte
}

func (s *tournamentService) CloseRound(ctx context.Context, fractalID int) (*CloseRoundResult, error) {
	started := time.Now()
	var out closeOutcome

	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		out = closeOutcome{}
		return s.closeRoundTx(ctx, tx, fractalID, &out)
	})
	if err != nil {
		return nil, err
	}

	closed := out.result.ClosedRound
	s.cache.Put(closed.ID, out.snapshot, nil)

	outcome := "promoted"
	if out.result.Terminated {
		outcome = "terminated"
		s.metrics.FractalClosed()
	}
	s.metrics.RoundClosed(outcome, time.Since(started))
	s.logger.InfoContext(ctx, "round closed",
		slog.Int("fractal_id", fractalID),
		slog.Int("round_id", closed.ID),
		slog.Int("level", closed.Level),
		slog.Int("groups", out.groups),
		slog.String("outcome", outcome),
	)

	for _, ev := range out.scored {
		publish(s.publisher, events.ProposalScored, fractalID, ev)
	}
	for _, el := range out.result.Elections {
		if len(el.Ranked) == 0 {
			continue
		}
		publish(s.publisher, events.RepresentativeElected, fractalID, events.RepresentativeElectedEvent{
			RoundID: closed.ID, GroupID: el.GroupID, Level: closed.Level, Ranked: el.Ranked, Delegates: el.Delegates,
			Promoted: !out.result.Terminated,
		})
	}
	publish(s.publisher, events.RoundClosed, fractalID, events.RoundClosedEvent{
		RoundID: closed.ID, Level: closed.Level, GroupCount: out.groups,
	})
	if next := out.result.NextRound; next != nil {
		publish(s.publisher, events.RoundStarted, fractalID, events.RoundStartedEvent{
			RoundID: next.ID, Level: next.Level, Deadline: next.Deadline, Groups: out.seats,
		})
	} else {
		publish(s.publisher, events.FractalClosed, fractalID, events.FractalClosedEvent{
			FinalRoundID: closed.ID, FinalLevel: closed.Level, GroupCount: out.groups, Reason: out.result.Reason,
		})
	}

	result := out.result
	return &result, nil
}

func (s *tournamentService) closeRoundTx(ctx context.Context, tx repositories.SQLExecutor, fractalID int, out *closeOutcome) error {
	if err := s.store.Fractals.Lock(ctx, tx, fractalID); err != nil {
		return err
	}
	fractal, err := s.store.Fractals.GetByID(ctx, tx, fractalID)
	if err != nil {
		return mapRepoError(err)
	}
	settings := fractal.Settings.WithDefaults()

	round, err := s.store.Rounds.GetLatestOpenForUpdate(ctx, tx, fractalID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return ErrNoOpenRound
		}
		return err
	}

	groups, err := s.store.Groups.ListByRound(ctx, tx, round.ID)
	if err != nil {
		return err
	}
	out.groups = len(groups)

	// scoring
	for _, group := range groups {
		scored, err := s.scoreGroup(ctx, tx, *round, group)
		if err != nil {
			return fmt.Errorf("failed to score group %d: %w", group.ID, err)
		}
		out.scored = append(out.scored, scored...)
	}

	// election
	elections := make([]GroupElection, 0, len(groups))
	pool := make([]int, 0, len(groups)*settings.RepresentativesPerGroup)
	for _, group := range groups {
		ballots, err := s.store.Votes.ListRepresentativeVotes(ctx, tx, group.ID, round.ID)
		if err != nil {
			return err
		}
		ranked := election.Tally(ballots, election.MaxRepresentatives)
		delegates := election.Delegates(ranked, settings.RepresentativesPerGroup)
		elections = append(elections, GroupElection{GroupID: group.ID, Ranked: ranked, Delegates: delegates})
		pool = append(pool, delegates...)
	}
	out.result.Elections = elections

	now := s.now()
	if err := s.store.Rounds.Close(ctx, tx, round.ID, now); err != nil {
		return mapRepoError(err)
	}
	round.Status = models.RoundStatusClosed
	round.EndedAt = &now
	out.result.ClosedRound = *round

	// snapshot before any proposal moves to the next round
	tree, err := s.builder.roundTree(ctx, tx, *round, nil)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}
	out.snapshot, err = json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.store.Snapshots.Save(ctx, tx, round.ID, out.snapshot); err != nil {
		return err
	}

	switch {
	case len(groups) <= 2:
		out.result.Reason = ReasonFewGroups
	case len(pool) == 0:
		out.result.Reason = ReasonNoDelegates
	}
	if out.result.Reason != "" {
		out.result.Terminated = true
		if err := s.store.Fractals.MarkClosed(ctx, tx, fractalID, now); err != nil {
			return mapRepoError(err)
		}
		// закрытый фрактал больше не держит участников
		return s.store.Members.ReleaseFractal(ctx, tx, fractalID)
	}

	return s.promote(ctx, tx, fractal, *round, elections, pool, now, out)
}

// scoreGroup records this round's raw score on every proposal of the group
// and every comment on those proposals. Only votes cast in this round count.
func (s *tournamentService) scoreGroup(ctx context.Context, tx repositories.SQLExecutor, round models.Round, group models.Group) ([]events.ProposalScoredEvent, error) {
	proposals, err := s.store.Proposals.ListByGroup(ctx, tx, group.ID)
	if err != nil {
		return nil, err
	}
	if len(proposals) == 0 {
		return nil, nil
	}
	ids := make([]int, len(proposals))
	for i, p := range proposals {
		ids[i] = p.ID
	}

	votes, err := s.store.Votes.ListProposalVotes(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	byProposal := make(map[int][]models.ProposalVote, len(proposals))
	for _, v := range votes {
		if v.RoundID == round.ID {
			byProposal[v.ProposalID] = append(byProposal[v.ProposalID], v)
		}
	}

	scored := make([]events.ProposalScoredEvent, 0, len(proposals))
	for _, p := range proposals {
		raw := scoring.ProposalRaw(byProposal[p.ID])
		scores, total, err := scoring.RecordScore(p.Scores, round.Level, raw)
		if err != nil {
			return nil, err
		}
		if err := s.store.Proposals.UpdateScores(ctx, tx, p.ID, scores, total); err != nil {
			return nil, err
		}
		scored = append(scored, events.ProposalScoredEvent{
			ProposalID: p.ID, GroupID: group.ID, Level: round.Level, Raw: raw, Total: total,
		})
	}

	comments, err := s.store.Comments.ListByProposals(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return scored, nil
	}
	commentIDs := make([]int, len(comments))
	for i, c := range comments {
		commentIDs[i] = c.ID
	}
	commentVotes, err := s.store.Votes.ListCommentVotes(ctx, tx, commentIDs)
	if err != nil {
		return nil, err
	}
	byComment := make(map[int][]models.CommentVote, len(comments))
	for _, v := range commentVotes {
		if v.RoundID == round.ID {
			byComment[v.CommentID] = append(byComment[v.CommentID], v)
		}
	}
	for _, c := range comments {
		scores, total, err := scoring.RecordScore(c.Scores, round.Level, scoring.CommentRaw(byComment[c.ID]))
		if err != nil {
			return nil, err
		}
		if err := s.store.Comments.UpdateScores(ctx, tx, c.ID, scores, total); err != nil {
			return nil, err
		}
	}
	return scored, nil
}

// promote seats the delegate pool into level+1 groups and carries each old
// group's strongest proposals into the new group its first delegate joined.
func (s *tournamentService) promote(
	ctx context.Context,
	tx repositories.SQLExecutor,
	fractal *models.Fractal,
	closed models.Round,
	elections []GroupElection,
	pool []int,
	now time.Time,
	out *closeOutcome,
) error {
	settings := fractal.Settings.WithDefaults()

	partition, err := s.promoter.GenerateGroups(ctx, circles.GenerateGroupsParams{
		MemberIDs: pool,
		GroupSize: settings.GroupSize,
	})
	if err != nil {
		return fmt.Errorf("failed to partition delegates: %w", err)
	}

	next, seats, err := openRound(ctx, s.store, tx, fractal, closed.Level+1, now, partition)
	if err != nil {
		return err
	}
	out.result.NextRound = next
	out.seats = seats

	seatOf := make(map[int]int, len(pool))
	for _, seat := range seats {
		for _, memberID := range seat.MemberIDs {
			seatOf[memberID] = seat.GroupID
		}
	}

	for i, el := range elections {
		target := seats[i%len(seats)].GroupID
		if len(el.Delegates) > 0 {
			if g, ok := seatOf[el.Delegates[0]]; ok {
				target = g
			}
		}

		top, err := s.store.Proposals.TopByGroup(ctx, tx, el.GroupID, settings.CarryOverProposals)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			continue
		}
		ids := make([]int, len(top))
		for j, p := range top {
			ids[j] = p.ID
		}
		if err := s.store.Proposals.MoveToGroup(ctx, tx, ids, next.ID, target, models.ProposalKindPropagated); err != nil {
			return err
		}
	}
	return nil
}

func (s *tournamentService) CloseExpiredRounds(ctx context.Context, now time.Time) (int, error) {
	rounds, err := s.store.Rounds.ListExpired(ctx, nil, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	var errs []error
	for _, r := range rounds {
		if _, err := s.CloseRound(ctx, r.FractalID); err != nil {
			if errors.Is(err, ErrNoOpenRound) {
				continue
			}
			s.logger.ErrorContext(ctx, "failed to close expired round",
				slog.Int("fractal_id", r.FractalID), slog.Int("round_id", r.ID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("round %d: %w", r.ID, err))
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

func (s *tournamentService) NotifyHalfTime(ctx context.Context, now time.Time) (int, error) {
	rounds, err := s.store.Rounds.ListHalfTimeDue(ctx, nil, now)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, r := range rounds {
		marked, err := s.store.Rounds.MarkHalfTimeNotified(ctx, nil, r.ID)
		if err != nil {
			return notified, err
		}
		if !marked {
			continue
		}

		groups, err := s.store.Groups.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return notified, err
		}
		memberIDs := make([]int, 0)
		for _, g := range groups {
			members, err := s.store.Groups.ListMembers(ctx, nil, g.ID)
			if err != nil {
				return notified, err
			}
			for _, m := range members {
				memberIDs = append(memberIDs, m.ID)
			}
		}

		publish(s.publisher, events.RoundHalfTime, r.FractalID, events.RoundHalfTimeEvent{
			RoundID: r.ID, Level: r.Level, Deadline: r.Deadline, MemberIDs: memberIDs,
		})
		notified++
	}
	return notified, nil
}

func (s *tournamentService) ReplaceSeat(ctx context.Context, input ReplaceSeatInput) error {
	if input.MemberID <= 0 || input.ReplacementID <= 0 || input.MemberID == input.ReplacementID {
		return ErrValidationFailed
	}
	group, err := s.store.Groups.GetByID(ctx, nil, input.GroupID)
	if err != nil {
		return mapRepoError(err)
	}

	err = s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		if err := s.store.Fractals.Lock(ctx, tx, group.FractalID); err != nil {
			return err
		}
		round, err := s.store.Rounds.GetLatestOpenForUpdate(ctx, tx, group.FractalID)
		if err != nil {
			if errors.Is(err, repositories.ErrRoundNotFound) {
				return ErrRoundClosed
			}
			return err
		}
		// места меняются только в открытом раунде
		if round.ID != group.RoundID {
			return ErrRoundClosed
		}

		seated, err := s.store.Groups.IsActiveMember(ctx, tx, group.ID, input.MemberID)
		if err != nil {
			return err
		}
		if !seated {
			return ErrNotGroupMember
		}
		if err := s.requireFractalMember(ctx, tx, group.FractalID, input.ReplacementID); err != nil {
			return err
		}
		_, err = s.store.Groups.FindMemberGroup(ctx, tx, round.ID, input.ReplacementID)
		switch {
		case err == nil:
			return ErrAlreadySeated
		case !errors.Is(err, repositories.ErrGroupNotFound):
			return err
		}

		return mapRepoError(s.store.Groups.ReplaceMember(ctx, tx, group.ID, input.MemberID, input.ReplacementID, s.now()))
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "seat replaced",
		slog.Int("fractal_id", group.FractalID),
		slog.Int("group_id", group.ID),
		slog.Int("member_id", input.MemberID),
		slog.Int("replacement_id", input.ReplacementID),
	)
	return nil
}

func (s *tournamentService) requireFractalMember(ctx context.Context, tx repositories.SQLExecutor, fractalID, memberID int) error {
	members, err := s.store.Members.ListFractalMembers(ctx, tx, fractalID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID == memberID {
			return nil
		}
	}
	return ErrNotFractalMember
}
