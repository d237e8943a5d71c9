package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/fractal-system/metrics"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

type TreeService interface {
	// GetFractalTree returns every round, or only roundID when given. The
	// viewer, when known, sees their own group's comments first.
	GetFractalTree(ctx context.Context, fractalID int, roundID *int, viewerID *int) (*models.FractalTree, error)
	GetGroupStatus(ctx context.Context, groupID int, viewerID *int) (*models.GroupStatus, error)
	// RefreshRoundTree drops the in-memory snapshot of a round and loads it
	// again from Postgres, rebuilding it when no snapshot was stored.
	RefreshRoundTree(ctx context.Context, fractalID, roundID int) (*models.RoundTree, error)
}

type treeService struct {
	store   *repositories.Store
	builder *treeBuilder
	cache   *TreeCache
	metrics *metrics.Collectors
	logger  *slog.Logger
}

func NewTreeService(store *repositories.Store, cache *TreeCache, collectors *metrics.Collectors, logger *slog.Logger) TreeService {
	if cache == nil {
		cache = NewTreeCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &treeService{
		store:   store,
		builder: &treeBuilder{store: store, now: systemClock},
		cache:   cache,
		metrics: collectors,
		logger:  logger,
	}
}

func (s *treeService) GetFractalTree(ctx context.Context, fractalID int, roundID *int, viewerID *int) (*models.FractalTree, error) {
	fractal, err := s.store.Fractals.GetByID(ctx, nil, fractalID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	var rounds []models.Round
	if roundID != nil {
		round, err := s.store.Rounds.GetByID(ctx, nil, *roundID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if round.FractalID != fractalID {
			return nil, ErrRoundNotFound
		}
		rounds = []models.Round{*round}
	} else {
		rounds, err = s.store.Rounds.ListByFractal(ctx, nil, fractalID)
		if err != nil {
			return nil, err
		}
	}

	tree := &models.FractalTree{Fractal: *fractal, Rounds: make([]models.RoundTree, 0, len(rounds))}
	for _, round := range rounds {
		viewerGroupID, err := s.viewerGroup(ctx, round.ID, viewerID)
		if err != nil {
			return nil, err
		}
		rt, err := s.roundTree(ctx, round, viewerGroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to build round %d: %w", round.ID, err)
		}
		tree.Rounds = append(tree.Rounds, *rt)
	}
	return tree, nil
}

func (s *treeService) GetGroupStatus(ctx context.Context, groupID int, viewerID *int) (*models.GroupStatus, error) {
	group, err := s.store.Groups.GetByID(ctx, nil, groupID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	round, err := s.store.Rounds.GetByID(ctx, nil, group.RoundID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	viewerGroupID, err := s.viewerGroup(ctx, round.ID, viewerID)
	if err != nil {
		return nil, err
	}
	gt, err := s.builder.groupTree(ctx, nil, *round, *group, viewerGroupID)
	if err != nil {
		return nil, err
	}
	return &models.GroupStatus{Round: *round, Group: gt}, nil
}

func (s *treeService) RefreshRoundTree(ctx context.Context, fractalID, roundID int) (*models.RoundTree, error) {
	round, err := s.store.Rounds.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if round.FractalID != fractalID {
		return nil, ErrRoundNotFound
	}

	s.cache.Invalidate(round.ID)
	rt, err := s.roundTree(ctx, *round, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh round %d: %w", round.ID, err)
	}
	s.logger.InfoContext(ctx, "round tree refreshed",
		slog.Int("fractal_id", fractalID),
		slog.Int("round_id", round.ID),
	)
	return rt, nil
}

func (s *treeService) viewerGroup(ctx context.Context, roundID int, viewerID *int) (*int, error) {
	if viewerID == nil {
		return nil, nil
	}
	g, err := s.store.Groups.FindMemberGroup(ctx, nil, roundID, *viewerID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &g.ID, nil
}

// roundTree serves closed rounds from the snapshot layers (memory, then
// Postgres) and always rebuilds open rounds.
func (s *treeService) roundTree(ctx context.Context, round models.Round, viewerGroupID *int) (*models.RoundTree, error) {
	if round.IsOpen() {
		return s.builder.roundTree(ctx, nil, round, viewerGroupID)
	}

	payload, archiveURL, ok := s.cache.Get(round.ID)
	if ok {
		s.metrics.TreeCacheHit()
	} else {
		s.metrics.TreeCacheMiss()
		var err error
		payload, archiveURL, err = s.store.Snapshots.Get(ctx, nil, round.ID)
		switch {
		case err == nil:
		case errors.Is(err, repositories.ErrSnapshotNotFound):
			// closed before snapshots existed; carried proposals are no
			// longer in these groups
			payload, err = s.rebuildSnapshot(ctx, round)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
		s.cache.Put(round.ID, payload, archiveURL)
	}

	var rt models.RoundTree
	if err := json.Unmarshal(payload, &rt); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of round %d: %w", round.ID, err)
	}
	rt.ArchiveURL = archiveURL
	if viewerGroupID != nil {
		for gi := range rt.Groups {
			for pi := range rt.Groups[gi].Proposals {
				reorderComments(rt.Groups[gi].Proposals[pi].Comments, round.Level, viewerGroupID)
			}
		}
	}
	return &rt, nil
}

func (s *treeService) rebuildSnapshot(ctx context.Context, round models.Round) ([]byte, error) {
	rt, err := s.builder.roundTree(ctx, nil, round, nil)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode round %d: %w", round.ID, err)
	}
	if err := s.store.Snapshots.Save(ctx, nil, round.ID, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to persist rebuilt snapshot", slog.Int("round_id", round.ID), slog.Any("error", err))
	}
	return payload, nil
}
