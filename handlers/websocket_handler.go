package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Клиенты только читают события; источник запроса ограничивает CORS на API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub            *events.Hub
	fractalService services.FractalService
	logger         *slog.Logger
}

func NewWebSocketHandler(hub *events.Hub, fs services.FractalService, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:            hub,
		fractalService: fs,
		logger:         logger,
	}
}

// ServeWs подписывает клиента на события одного фрактала.
// Клиент подключается к /ws/fractals/{fractalID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	fractalID, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Комнату создаём только для существующего фрактала
	if _, err := h.fractalService.GetFractal(r.Context(), fractalID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader.Upgrade сам отправляет HTTP ошибку клиенту
		h.logger.Warn("failed to upgrade websocket connection", slog.Int("fractal_id", fractalID), slog.Any("error", err))
		return
	}

	client := events.NewClient(h.hub, conn, fractalID)
	if !h.hub.Join(client) {
		h.logger.Warn("hub stopped, dropping websocket client", slog.Int("fractal_id", fractalID))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client joined", slog.Int("fractal_id", fractalID), slog.String("client_id", client.ID))
}
