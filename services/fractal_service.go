package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/fractal-system/circles"
	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/metrics"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

type FractalService interface {
	CreateFractal(ctx context.Context, input CreateFractalInput) (*models.Fractal, error)
	GetFractal(ctx context.Context, id int) (*models.Fractal, error)
	ListFractals(ctx context.Context, filter ListFractalsInput) ([]models.Fractal, error)
	ListRounds(ctx context.Context, fractalID int) ([]models.Round, error)
	JoinFractal(ctx context.Context, fractalID int, info models.MemberInfo) (*models.Member, error)
	LeaveFractal(ctx context.Context, fractalID, memberID int) error
	StartFractal(ctx context.Context, fractalID int) (*models.Round, error)
}

type CreateFractalInput struct {
	Name        string                  `json:"name"`
	Description *string                 `json:"description"`
	StartTime   *time.Time              `json:"start_time"`
	Settings    *models.FractalSettings `json:"settings"`
}

type ListFractalsInput struct {
	Status *models.FractalStatus
	Limit  int
	Offset int
}

type fractalService struct {
	store     *repositories.Store
	generator circles.GroupGenerator
	defaults  models.FractalSettings
	publisher EventPublisher
	metrics   *metrics.Collectors
	logger    *slog.Logger
	now       Clock
}

func NewFractalService(
	store *repositories.Store,
	generator circles.GroupGenerator,
	defaults models.FractalSettings,
	publisher EventPublisher,
	collectors *metrics.Collectors,
	logger *slog.Logger,
) FractalService {
	if generator == nil {
		generator = circles.NewBalancedGenerator(nil)
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fractalService{
		store:     store,
		generator: generator,
		defaults:  defaults.WithDefaults(),
		publisher: publisher,
		metrics:   collectors,
		logger:    logger,
		now:       systemClock,
	}
}

// applyDefaults fills unset settings from the service defaults.
func (s *fractalService) applyDefaults(in *models.FractalSettings) models.FractalSettings {
	if in == nil {
		return s.defaults
	}
	out := *in
	if out.GroupSize <= 0 {
		out.GroupSize = s.defaults.GroupSize
	}
	if out.ProposalsPerUser <= 0 {
		out.ProposalsPerUser = s.defaults.ProposalsPerUser
	}
	if out.RoundDuration <= 0 {
		out.RoundDuration = s.defaults.RoundDuration
	}
	if out.CarryOverProposals <= 0 {
		out.CarryOverProposals = s.defaults.CarryOverProposals
	}
	if out.RepresentativesPerGroup <= 0 {
		out.RepresentativesPerGroup = s.defaults.RepresentativesPerGroup
	}
	return out.WithDefaults()
}

func (s *fractalService) CreateFractal(ctx context.Context, input CreateFractalInput) (*models.Fractal, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if input.Settings != nil && input.Settings.RepresentativesPerGroup > 3 {
		return nil, fmt.Errorf("%w: representatives_per_group must be at most 3", ErrInvalidSettings)
	}

	startTime := s.now()
	if input.StartTime != nil {
		startTime = input.StartTime.UTC()
	}

	fractal := &models.Fractal{
		Name:        name,
		Description: input.Description,
		StartTime:   startTime,
		Status:      models.FractalStatusWaiting,
		Settings:    s.applyDefaults(input.Settings),
	}
	if err := s.store.Fractals.Create(ctx, nil, fractal); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.InfoContext(ctx, "fractal created", slog.Int("fractal_id", fractal.ID), slog.String("name", fractal.Name))
	return fractal, nil
}

func (s *fractalService) GetFractal(ctx context.Context, id int) (*models.Fractal, error) {
	f, err := s.store.Fractals.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return f, nil
}

func (s *fractalService) ListFractals(ctx context.Context, filter ListFractalsInput) ([]models.Fractal, error) {
	list, err := s.store.Fractals.List(ctx, repositories.ListFractalsFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fractals: %w", err)
	}
	return list, nil
}

func (s *fractalService) ListRounds(ctx context.Context, fractalID int) ([]models.Round, error) {
	if _, err := s.store.Fractals.GetByID(ctx, nil, fractalID); err != nil {
		return nil, mapRepoError(err)
	}
	rounds, err := s.store.Rounds.ListByFractal(ctx, nil, fractalID)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

func validateMemberInfo(info models.MemberInfo) error {
	switch info.Platform {
	case models.PlatformTelegram, models.PlatformDiscord, models.PlatformWeb:
	default:
		return ErrInvalidPlatform
	}
	if strings.TrimSpace(info.ExternalID) == "" {
		return ErrExternalIDRequired
	}
	if strings.TrimSpace(info.DisplayName) == "" {
		return ErrDisplayNameRequired
	}
	return nil
}

func (s *fractalService) JoinFractal(ctx context.Context, fractalID int, info models.MemberInfo) (*models.Member, error) {
	if err := validateMemberInfo(info); err != nil {
		return nil, err
	}

	var member *models.Member
	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		if err := s.store.Fractals.Lock(ctx, tx, fractalID); err != nil {
			return err
		}
		fractal, err := s.store.Fractals.GetByID(ctx, tx, fractalID)
		if err != nil {
			return mapRepoError(err)
		}
		if fractal.Status != models.FractalStatusWaiting {
			return ErrFractalNotJoinable
		}

		member, err = s.store.Members.Upsert(ctx, tx, info)
		if err != nil {
			return err
		}
		if err := s.checkNotActiveElsewhere(ctx, tx, member, fractalID); err != nil {
			return err
		}
		_, alreadyActive, err := s.store.Members.AddToFractal(ctx, tx, fractalID, member.ID)
		if err != nil {
			return mapRepoError(err)
		}
		if alreadyActive {
			return ErrAlreadyMember
		}
		if err := s.store.Members.SetActiveFractal(ctx, tx, []int{member.ID}, &fractalID); err != nil {
			return err
		}
		member.ActiveFractalID = &fractalID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member joined fractal",
		slog.Int("fractal_id", fractalID),
		slog.Int("member_id", member.ID),
		slog.String("platform", string(member.Platform)),
	)
	return member, nil
}

// checkNotActiveElsewhere отклоняет вход, пока участник активен в другом незакрытом фрактале.
func (s *fractalService) checkNotActiveElsewhere(ctx context.Context, tx repositories.SQLExecutor, member *models.Member, fractalID int) error {
	if member.ActiveFractalID == nil || *member.ActiveFractalID == fractalID {
		return nil
	}
	other, err := s.store.Fractals.GetByID(ctx, tx, *member.ActiveFractalID)
	if err != nil {
		if errors.Is(err, repositories.ErrFractalNotFound) {
			return nil
		}
		return err
	}
	if other.Status != models.FractalStatusClosed {
		return ErrMemberInOtherFractal
	}
	return nil
}

func (s *fractalService) LeaveFractal(ctx context.Context, fractalID, memberID int) error {
	return s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		if err := s.store.Fractals.Lock(ctx, tx, fractalID); err != nil {
			return err
		}
		fractal, err := s.store.Fractals.GetByID(ctx, tx, fractalID)
		if err != nil {
			return mapRepoError(err)
		}
		if fractal.Status != models.FractalStatusWaiting {
			return ErrFractalNotJoinable
		}
		if err := s.store.Members.RemoveFromFractal(ctx, tx, fractalID, memberID, s.now()); err != nil {
			return mapRepoError(err)
		}
		return s.store.Members.SetActiveFractal(ctx, tx, []int{memberID}, nil)
	})
}

// StartFractal seats every active member into level-0 groups. The status
// switch from waiting is the guard against a double start.
func (s *fractalService) StartFractal(ctx context.Context, fractalID int) (*models.Round, error) {
	var (
		fractal *models.Fractal
		round   *models.Round
		seats   []events.GroupAssignment
		members int
	)

	err := s.store.Tx.RunInTx(ctx, func(tx repositories.SQLExecutor) error {
		if err := s.store.Fractals.Lock(ctx, tx, fractalID); err != nil {
			return err
		}
		var err error
		fractal, err = s.store.Fractals.GetByID(ctx, tx, fractalID)
		if err != nil {
			return mapRepoError(err)
		}

		now := s.now()
		if err := s.store.Fractals.MarkStarted(ctx, tx, fractalID, now); err != nil {
			if errors.Is(err, repositories.ErrFractalStatusConflict) {
				return ErrAlreadyStarted
			}
			return err
		}
		fractal.Status = models.FractalStatusInProgress
		fractal.StartedAt = &now

		pool, err := s.store.Members.ListFractalMembers(ctx, tx, fractalID)
		if err != nil {
			return err
		}
		if len(pool) == 0 {
			return ErrNoMembers
		}
		members = len(pool)
		ids := make([]int, len(pool))
		for i, m := range pool {
			ids[i] = m.ID
		}

		partition, err := s.generator.GenerateGroups(ctx, circles.GenerateGroupsParams{
			MemberIDs: ids,
			GroupSize: fractal.Settings.WithDefaults().GroupSize,
		})
		if err != nil {
			return fmt.Errorf("failed to partition members: %w", err)
		}

		round, seats, err = openRound(ctx, s.store, tx, fractal, 0, now, partition)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.FractalStarted()
	s.logger.InfoContext(ctx, "fractal started",
		slog.Int("fractal_id", fractalID),
		slog.Int("round_id", round.ID),
		slog.Int("members", members),
		slog.Int("groups", len(seats)),
	)
	publish(s.publisher, events.FractalStarted, fractalID, events.FractalStartedEvent{Fractal: *fractal, MemberCount: members})
	publish(s.publisher, events.RoundStarted, fractalID, events.RoundStartedEvent{
		RoundID: round.ID, Level: round.Level, Deadline: round.Deadline, Groups: seats,
	})
	return round, nil
}

// openRound creates an open round at level with one group per partition.
func openRound(
	ctx context.Context,
	store *repositories.Store,
	tx repositories.SQLExecutor,
	fractal *models.Fractal,
	level int,
	now time.Time,
	partition [][]int,
) (*models.Round, []events.GroupAssignment, error) {
	deadline := now.Add(time.Duration(fractal.Settings.WithDefaults().RoundDuration))
	round := &models.Round{
		FractalID: fractal.ID,
		Level:     level,
		Status:    models.RoundStatusOpen,
		StartedAt: now,
		Deadline:  &deadline,
	}
	if err := store.Rounds.Create(ctx, tx, round); err != nil {
		return nil, nil, err
	}

	seats := make([]events.GroupAssignment, 0, len(partition))
	for _, memberIDs := range partition {
		group := &models.Group{RoundID: round.ID, FractalID: fractal.ID, Level: level}
		if err := store.Groups.Create(ctx, tx, group); err != nil {
			return nil, nil, err
		}
		if err := store.Groups.AddMembers(ctx, tx, group.ID, memberIDs); err != nil {
			return nil, nil, err
		}
		seats = append(seats, events.GroupAssignment{GroupID: group.ID, MemberIDs: memberIDs})
	}
	return round, seats, nil
}
