package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one websocket connection watching a single fractal.
type Client struct {
	ID        string
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	FractalID int

	mu     sync.Mutex
	closed bool
}

type WebSocketMessage struct {
	Type      EventType `json:"type"`
	EventID   string    `json:"event_id"`
	FractalID int       `json:"fractal_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub groups websocket clients into rooms, one room per fractal, and pushes
// every domain event of that fractal to its room.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[int]map[*Client]bool
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[int]map[*Client]bool),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, fractalID int) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		FractalID: fractalID,
	}
}

// Run serves register/unregister requests until ctx is done, then closes
// every client channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					client.closeSend()
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.FractalID]; !ok {
				h.rooms[client.FractalID] = make(map[*Client]bool)
			}
			h.rooms[client.FractalID][client] = true
			h.logger.Debug("client registered",
				slog.Int("fractal_id", client.FractalID),
				slog.String("client_id", client.ID),
				slog.Int("room_size", len(h.rooms[client.FractalID])),
			)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.FractalID]; ok {
				if _, ok := clients[client]; ok {
					client.closeSend()
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, client.FractalID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Join hands the client to the running hub. It reports false once the hub
// has stopped.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Leave removes the client from its room; it is a no-op after the hub stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// RoomSize returns the number of clients watching a fractal.
func (h *Hub) RoomSize(fractalID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[fractalID])
}

// BroadcastToRoom sends message to every client of the fractal's room.
// Clients with a full buffer miss the message.
func (h *Hub) BroadcastToRoom(fractalID int, message any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[fractalID]
	if !ok {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal room message", slog.Int("fractal_id", fractalID), slog.Any("error", err))
		return
	}

	for client := range clients {
		client.mu.Lock()
		if !client.closed {
			select {
			case client.Send <- payload:
			default:
				h.logger.Warn("client send buffer full, skipping", slog.String("client_id", client.ID))
			}
		}
		client.mu.Unlock()
	}
}

// Attach subscribes the hub to every event type on the bus.
func (h *Hub) Attach(bus *EventBus) {
	for _, t := range AllTypes {
		bus.RegisterSubscriber(t, hubSubscriber{hub: h})
	}
}

type hubSubscriber struct {
	hub *Hub
}

func (s hubSubscriber) Deliver(evt Event) error {
	s.hub.BroadcastToRoom(evt.FractalID, WebSocketMessage{
		Type:      evt.Type,
		EventID:   evt.ID,
		FractalID: evt.FractalID,
		Timestamp: evt.Timestamp,
		Payload:   evt.Data,
	})
	return nil
}

func (s hubSubscriber) Close() {}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// ReadPump discards inbound messages and keeps the read deadline fresh.
// Clients are read-only observers.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("websocket closed unexpectedly", slog.String("client_id", c.ID), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("websocket write failed", slog.String("client_id", c.ID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
