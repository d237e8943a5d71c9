package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/Dosada05/fractal-system/db"
	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/handlers"
	"github.com/Dosada05/fractal-system/metrics"
	api "github.com/Dosada05/fractal-system/routes"
	"github.com/Dosada05/fractal-system/services"
)

const shutdownTimeout = 15 * time.Second

var serveFlags = struct {
	migrate bool
}{}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and round scheduler",
		Run:   serveRun,
	}
	cmd.Flags().BoolVar(&serveFlags.migrate, "migrate", true, "apply pending database migrations on start")
	return cmd
}

func serveRun(cmd *cobra.Command, _ []string) {
	logger := commonRun()
	cfg := loadConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.close()

	if serveFlags.migrate {
		if err := db.Migrate(ctx, a.db, logger); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			return
		}
	}

	// Инициализация WebSocket Hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := events.NewHub(logger)
	go wsHub.Run(hubCtx)
	wsHub.Attach(a.bus)
	logger.Info("WebSocket Hub started")

	// Запуск планировщика закрытия раундов по дедлайну
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go runScheduler(schedulerCtx, a.tournament, cfg.CloseCheckInterval, logger)

	// Инициализация обработчиков HTTP
	fractalHandler := handlers.NewFractalHandler(a.fractals, a.tournament, a.trees)
	contentHandler := handlers.NewContentHandler(a.content)
	voteHandler := handlers.NewVoteHandler(a.votes)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, a.fractals, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		metrics.Handler(a.registry),
		fractalHandler,
		contentHandler,
		voteHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
		} else {
			logger.Info("server stopped gracefully")
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		stopScheduler()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}

// runScheduler закрывает просроченные раунды и рассылает напоминания о половине срока.
// Первый проход сразу при старте, затем по тикеру.
func runScheduler(ctx context.Context, tournament services.TournamentService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("round scheduler started", slog.Duration("interval", interval))

	tick := func() {
		now := time.Now().UTC()
		if n, err := tournament.NotifyHalfTime(ctx, now); err != nil {
			logger.Error("scheduler: half-time notifications failed", slog.Any("error", err))
		} else if n > 0 {
			logger.Info("scheduler: half-time notifications sent", slog.Int("rounds", n))
		}
		if n, err := tournament.CloseExpiredRounds(ctx, now); err != nil {
			logger.Error("scheduler: closing expired rounds failed", slog.Int("closed", n), slog.Any("error", err))
		} else if n > 0 {
			logger.Info("scheduler: expired rounds closed", slog.Int("closed", n))
		}
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			logger.Info("round scheduler stopped")
			return
		case <-ticker.C:
			tick()
		}
	}
}
