package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AnswerSubmitter records a poll answer on behalf of a connected participant.
type AnswerSubmitter interface {
	SubmitAnswer(ctx context.Context, roomCode string, pollID, userID uuid.UUID, answerIndex int) error
}

// Client represents a single WebSocket connection in a room.
type Client struct {
	ID       string
	RoomCode string
	UserID   uuid.UUID
	Role     string
	hub      *Hub
	session  AnswerSubmitter
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// queue delivers a message to this client without blocking; a client whose
// buffer is full misses the message.
func (c *Client) queue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The join
// is gated on room liveness; a rejected client gets the queued room-ended
// and error events flushed before the connection closes.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error), session AnswerSubmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomCode := c.Query("room_code")
		token := c.Query("token")
		if roomCode == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room_code and token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, _ := uuid.Parse(userIDStr)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			RoomCode: roomCode,
			UserID:   userID,
			Role:     role,
			hub:      hub,
			session:  session,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		if err := hub.Join(client); err != nil {
			go client.writePump()
			close(client.send) // writePump drains the rejection events, then closes
			return
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "submit-answer":
			var payload struct {
				PollID      uuid.UUID `json:"poll_id"`
				AnswerIndex int       `json:"answer_index"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.queue(WSMessage{Event: EventError, Data: marshalRaw(map[string]string{"reason": "invalid submit-answer payload"})})
				continue
			}
			if c.session == nil {
				continue
			}
			if err := c.session.SubmitAnswer(context.Background(), c.RoomCode, payload.PollID, c.UserID, payload.AnswerIndex); err != nil {
				c.queue(WSMessage{Event: EventError, Data: marshalRaw(map[string]string{"reason": err.Error()})})
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
