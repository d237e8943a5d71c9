package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/Dosada05/fractal-system/docs" // регистрирует swagger.json
	"github.com/Dosada05/fractal-system/handlers"
	"github.com/Dosada05/fractal-system/middleware"
	"github.com/Dosada05/fractal-system/models"
)

func SetupRoutes(
	router chi.Router,
	jwtSecret string,
	metricsHandler http.Handler,
	fractalHandler *handlers.FractalHandler,
	contentHandler *handlers.ContentHandler,
	voteHandler *handlers.VoteHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// WebSocket без таймаута: соединение живёт, пока клиент смотрит фрактал
	router.Get("/ws/fractals/{fractalID}", webSocketHandler.ServeWs)

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		// Публичное чтение; токен, если есть, определяет зрителя
		r.Group(func(r chi.Router) {
			r.Use(middleware.Identify(jwtSecret))

			r.Get("/fractals", fractalHandler.ListHandler)
			r.Get("/fractals/{fractalID}", fractalHandler.GetByIDHandler)
			r.Get("/fractals/{fractalID}/rounds", fractalHandler.ListRoundsHandler)
			r.Get("/fractals/{fractalID}/tree", fractalHandler.TreeHandler)
			r.Get("/groups/{groupID}", fractalHandler.GroupStatusHandler)
		})

		// Защищенные маршруты
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))

			r.Post("/fractals", fractalHandler.CreateHandler)
			r.Post("/fractals/{fractalID}/join", fractalHandler.JoinHandler)
			r.Post("/fractals/{fractalID}/leave", fractalHandler.LeaveHandler)

			// Управление ходом фрактала только для администраторов
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(models.RoleAdmin))

				r.Post("/fractals/{fractalID}/start", fractalHandler.StartHandler)
				r.Post("/fractals/{fractalID}/rounds/close", fractalHandler.CloseRoundHandler)
				r.Post("/fractals/{fractalID}/tree/rebuild", fractalHandler.RebuildTreeHandler)
				r.Post("/groups/{groupID}/seats/replace", fractalHandler.ReplaceSeatHandler)
			})

			r.Post("/fractals/{fractalID}/proposals", contentHandler.CreateProposalHandler)
			r.Post("/proposals/{proposalID}/comments", contentHandler.CreateCommentHandler)

			r.Post("/proposals/{proposalID}/votes", voteHandler.VoteProposalHandler)
			r.Post("/comments/{commentID}/votes", voteHandler.VoteCommentHandler)
			r.Post("/groups/{groupID}/representative-votes", voteHandler.VoteRepresentativeHandler)
		})
	})
}
