// Package ws implements the devserver's realtime endpoint: clients join the
// room named by their session id and exchange message/file frames. Visitor
// messages get a canned bot reply so the widget has inbound traffic to show.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleychat/parley-go/internal/model/chat"
	"github.com/parleychat/parley-go/internal/service/backend"
)

// Hub tracks live connections per room and fans frames out to them.
type Hub struct {
	backend  *backend.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]bool
}

// NewHub creates the hub.
func NewHub(svc *backend.Service, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		backend: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		rooms: make(map[string]map[*websocket.Conn]bool),
	}
}

// RegisterRoutes wires the realtime endpoint.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleConnection)
}

func (h *Hub) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	var join chat.Frame
	if err := conn.ReadJSON(&join); err != nil || join.Type != chat.FrameJoin || join.Room == "" {
		conn.Close()
		return
	}
	room := join.Room

	if _, err := h.backend.GetSession(r.Context(), room); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session"))
		conn.Close()
		return
	}

	h.add(room, conn)
	h.logger.Info("client joined room", zap.String("room", room))

	defer func() {
		h.remove(room, conn)
		conn.Close()
	}()

	for {
		var f chat.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Event == nil {
			continue
		}
		f.Event.Room = room

		switch f.Type {
		case chat.FrameMessage:
			h.handleMessage(r, room, f)
		case chat.FrameFile:
			// Content was uploaded over REST already; just relay the
			// availability signal.
			h.broadcast(room, f)
		}
	}
}

func (h *Hub) handleMessage(r *http.Request, room string, f chat.Frame) {
	entry := backend.TranscriptEntry{
		AuthorType: f.Event.AuthorType,
		Direction:  f.Event.Direction,
		Text:       f.Event.Text,
		Timestamp:  f.Event.Timestamp,
	}
	if err := h.backend.AddEntry(r.Context(), room, entry); err != nil {
		h.logger.Warn("failed to persist message", zap.String("room", room), zap.Error(err))
		return
	}

	h.broadcast(room, f)
	h.reply(r, room)
}

// reply posts a canned bot response so conversations in the devserver have
// two sides.
func (h *Hub) reply(r *http.Request, room string) {
	env := chat.Envelope{
		Room:       room,
		Direction:  chat.DirectionReply,
		Channel:    chat.ChannelExternal,
		AuthorType: chat.AuthorBot,
		AuthorName: "parley-bot",
		Text:       "Thanks for your message! A teammate will reply shortly.",
		Timestamp:  time.Now().UTC(),
	}

	entry := backend.TranscriptEntry{
		AuthorType: env.AuthorType,
		Direction:  env.Direction,
		Text:       env.Text,
		Timestamp:  env.Timestamp,
	}
	if err := h.backend.AddEntry(r.Context(), room, entry); err != nil {
		h.logger.Warn("failed to persist reply", zap.String("room", room), zap.Error(err))
		return
	}

	h.broadcast(room, chat.Frame{Type: chat.FrameMessage, Event: &env})
}

func (h *Hub) add(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*websocket.Conn]bool)
	}
	h.rooms[room][conn] = true
}

func (h *Hub) remove(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], conn)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// broadcast fans a frame out to every member of the room. Dead connections
// are dropped; their read loops clean up on their own.
func (h *Hub) broadcast(room string, f chat.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.rooms[room] {
		if err := conn.WriteJSON(f); err != nil {
			h.logger.Warn("broadcast failed", zap.String("room", room), zap.Error(err))
			conn.Close()
			delete(h.rooms[room], conn)
		}
	}
}
