package http

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"live-arena-service/internal/app"
)

const sendBuffer = 64

type client struct {
	id      string
	send    chan []byte
	room    string
}

// Hub fans engine events out to websocket connections grouped by session.
// Delivery never blocks: a client whose buffer is full loses the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) register(id string) *client {
	c := &client{id: id, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// unregister removes the client and closes its send channel.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveLocked(c)
	delete(h.clients, id)
	close(c.send)
}

func (h *Hub) leaveLocked(c *client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Join moves a connection into a session room, leaving any previous one.
func (h *Hub) Join(connID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if c.room == sessionID {
		return
	}
	h.leaveLocked(c)
	members := h.rooms[sessionID]
	if members == nil {
		members = make(map[string]*client)
		h.rooms[sessionID] = members
	}
	members[connID] = c
	c.room = sessionID
}

func (h *Hub) Send(connID string, evt app.Event) {
	data, ok := h.encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, evt.Type, data)
	}
}

func (h *Hub) Broadcast(sessionID string, evt app.Event) {
	data, ok := h.encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[sessionID] {
		h.deliver(c, evt.Type, data)
	}
}

// RoomSize reports how many connections are in a session room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) encode(evt app.Event) ([]byte, bool) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(evt.Type)).Msg("failed to encode event")
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(c *client, typ app.EventType, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn().Str("conn_id", c.id).Str("type", string(typ)).Msg("send buffer full, dropping event")
	}
}
