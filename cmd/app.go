package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dosada05/fractal-system/circles"
	"github.com/Dosada05/fractal-system/config"
	"github.com/Dosada05/fractal-system/db"
	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/metrics"
	"github.com/Dosada05/fractal-system/notify"
	"github.com/Dosada05/fractal-system/repositories"
	"github.com/Dosada05/fractal-system/services"
	"github.com/Dosada05/fractal-system/storage"
)

const dbConnectTimeout = 5 * time.Second

// app holds everything the subcommands share: database, bus, services.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	registry *prometheus.Registry
	bus      *events.EventBus
	store    *repositories.Store
	cache    *services.TreeCache

	fractals   services.FractalService
	content    services.ContentService
	votes      services.VoteService
	tournament services.TournamentService
	trees      services.TreeService
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// Подключение к базе данных
	dbConn, err := db.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	registry := metrics.NewRegistry()
	collectors := metrics.NewCollectors(registry)
	bus := events.NewEventBus(registry, logger)

	store := repositories.NewPostgresStore(dbConn, logger)
	cache := services.NewTreeCache(cfg.TreeCacheSize)

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         dbConn,
		registry:   registry,
		bus:        bus,
		store:      store,
		cache:      cache,
		fractals:   services.NewFractalService(store, circles.NewBalancedGenerator(nil), cfg.FractalDefaults(), bus, collectors, logger),
		content:    services.NewContentService(store, logger),
		votes:      services.NewVoteService(store, collectors, logger),
		tournament: services.NewTournamentService(store, cache, bus, collectors, logger),
		trees:      services.NewTreeService(store, cache, collectors, logger),
	}

	if err := a.attachSubscribers(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// attachSubscribers подключает необязательные интеграции: Telegram и архив R2.
func (a *app) attachSubscribers(ctx context.Context) error {
	if a.cfg.TelegramToken != "" {
		bot, err := notify.NewTelegramBot(a.cfg.TelegramToken)
		if err != nil {
			return err
		}
		notify.NewTelegramNotifier(bot, a.store.Members, a.logger).Attach(a.bus)
		a.logger.Info("telegram notifier attached", slog.String("bot", bot.Self.UserName))
	} else {
		a.logger.Info("TELEGRAM_TOKEN not set, telegram notifications disabled")
	}

	if r2 := a.cfg.R2(); r2.Enabled() {
		uploader, err := storage.NewR2Uploader(ctx, r2)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		archive := storage.NewSnapshotArchive(uploader)
		services.NewSnapshotArchiver(a.store, archive, a.cache, a.logger).Attach(a.bus)
		a.logger.Info("Cloudflare R2 snapshot archive attached", slog.String("bucket", r2.BucketName))
	} else {
		a.logger.Info("R2 not configured, round snapshots stay in the database only")
	}
	return nil
}

// close останавливает шину (доставляя события из очереди) и закрывает БД.
func (a *app) close() {
	a.bus.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database connection", slog.Any("error", err))
	} else {
		a.logger.Info("database connection closed")
	}
}
