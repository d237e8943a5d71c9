package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/repositories"
)

const archiveTimeout = 30 * time.Second

// SnapshotStore is where closed-round trees are published.
type SnapshotStore interface {
	Store(ctx context.Context, fractalID, level int, payload []byte) (string, error)
}

// SnapshotArchiver copies every closed round's snapshot to the archive and
// records the public URL next to the snapshot.
type SnapshotArchiver struct {
	store   *repositories.Store
	archive SnapshotStore
	cache   *TreeCache
	logger  *slog.Logger
}

func NewSnapshotArchiver(store *repositories.Store, archive SnapshotStore, cache *TreeCache, logger *slog.Logger) *SnapshotArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotArchiver{store: store, archive: archive, cache: cache, logger: logger}
}

func (a *SnapshotArchiver) Attach(bus *events.EventBus) events.SubscriberID {
	return bus.SubscribeFunc(events.RoundClosed, a.handle)
}

func (a *SnapshotArchiver) handle(evt events.Event) {
	data, ok := evt.Data.(events.RoundClosedEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if _, err := a.Archive(ctx, evt.FractalID, data.RoundID, data.Level); err != nil {
		a.logger.ErrorContext(ctx, "failed to archive round snapshot",
			slog.Int("fractal_id", evt.FractalID),
			slog.Int("round_id", data.RoundID),
			slog.Any("error", err),
		)
	}
}

// Archive uploads the stored snapshot of a closed round.
func (a *SnapshotArchiver) Archive(ctx context.Context, fractalID, roundID, level int) (string, error) {
	payload, _, err := a.store.Snapshots.Get(ctx, nil, roundID)
	if err != nil {
		return "", err
	}
	location, err := a.archive.Store(ctx, fractalID, level, payload)
	if err != nil {
		return "", err
	}
	if err := a.store.Snapshots.SetArchiveURL(ctx, nil, roundID, location); err != nil {
		return "", err
	}
	if a.cache != nil {
		a.cache.Put(roundID, payload, &location)
	}

	a.logger.InfoContext(ctx, "round snapshot archived",
		slog.Int("round_id", roundID),
		slog.String("location", location),
	)
	return location, nil
}
