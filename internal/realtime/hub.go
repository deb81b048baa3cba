package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Push event names delivered to room participants.
const (
	EventNewPoll     = "new-poll"
	EventRoomEnded   = "room-ended"
	EventPollUpdated = "poll-updated"
	EventError       = "error"
)

// ErrJoinRejected is returned when a client tries to join an inactive room.
var ErrJoinRejected = errors.New("join rejected: room is not active")

// RoomChecker gates joins: only active rooms accept participants.
type RoomChecker interface {
	IsActive(code string) bool
}

// Hub maintains room code -> set of connections and broadcasts events.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// room code -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	checker  RoomChecker
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishRoomEvent(roomCode, event string, payload []byte) error
}

// RedisSubscriber subscribes to room channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(roomCode string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(checker RoomChecker, logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		checker:  checker,
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Join registers a client under its room code. Joins to inactive or unknown
// rooms are rejected: the client is told via a room-ended event on its own
// channel, is never registered, and ErrJoinRejected is returned. Starts the
// Redis subscription for the room when the first client joins.
func (h *Hub) Join(c *Client) error {
	if h.checker != nil && !h.checker.IsActive(c.RoomCode) {
		c.queue(WSMessage{Event: EventRoomEnded, Data: marshalRaw(map[string]string{"room_code": c.RoomCode})})
		c.queue(WSMessage{Event: EventError, Data: marshalRaw(map[string]string{"reason": "room is not active"})})
		return ErrJoinRejected
	}

	h.mu.Lock()
	if h.rooms[c.RoomCode] == nil {
		h.rooms[c.RoomCode] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeRoom(c.RoomCode, func(event string, payload []byte) {
				h.BroadcastToRoom(c.RoomCode, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Error("room subscription failed", zap.String("room_code", c.RoomCode), zap.Error(err))
			} else {
				h.subs[c.RoomCode] = cancel
			}
		}
	}
	h.rooms[c.RoomCode][c.ID] = c
	h.mu.Unlock()

	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_code", c.RoomCode))
	return nil
}

// Leave removes a client from its room. Safe to call for clients that never
// registered. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.RoomCode]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.RoomCode)
			if cancel, ok := h.subs[c.RoomCode]; ok {
				cancel()
				delete(h.subs, c.RoomCode)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_code", c.RoomCode))
}

// BroadcastToRoom sends an event to all clients in a room (local only).
// A room with no clients, or an unknown code, is a silent no-op. The client
// set is snapshotted under the read lock; joins and leaves racing the
// broadcast may or may not see this event.
func (h *Hub) BroadcastToRoom(roomCode, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshalRaw(payload)}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomCode]))
	for _, c := range h.rooms[roomCode] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.queue(msg)
	}
}

// PublishToRoom delivers an event to all participants of a room across all
// instances. With Redis wired it publishes only: the subscriber callback
// performs the local broadcast once per instance (including this one), so
// clients never see duplicate delivery. Without Redis it broadcasts locally.
func (h *Hub) PublishToRoom(roomCode, event string, payload interface{}) {
	if h.redis != nil {
		_ = h.redis.PublishRoomEvent(roomCode, event, marshalRaw(payload))
		return
	}
	h.BroadcastToRoom(roomCode, event, payload)
}

// SendToClient sends an event to a single client in a room (e.g. a submit
// error back to its sender).
func (h *Hub) SendToClient(roomCode, clientID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.rooms[roomCode][clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	c.queue(WSMessage{Event: event, Data: marshalRaw(payload)})
}

// JoinedCount returns the number of connected clients in a room.
func (h *Hub) JoinedCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

func marshalRaw(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case []byte:
		return v
	case json.RawMessage:
		return v
	case nil:
		return nil
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
