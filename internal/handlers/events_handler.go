package handlers

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhived/backend/internal/realtime"
	"github.com/taskhived/backend/internal/utils"
)

// EventsHandler serves the task-event websocket. Fiber's JWT middleware does
// not run on upgraded connections, so the token comes in as a query param.
type EventsHandler struct {
	Hub       *realtime.Hub
	JWTSecret string
}

func NewEventsHandler(hub *realtime.Hub, secret string) *EventsHandler {
	return &EventsHandler{Hub: hub, JWTSecret: secret}
}

func (h *EventsHandler) WebSocketHandler(c *websocket.Conn) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		zap.L().Debug("ws: token parameter missing")
		c.Close()
		return
	}

	claims, err := utils.ParseJWT(h.JWTSecret, tokenStr)
	if err != nil {
		zap.L().Debug("ws: invalid token", zap.Error(err))
		c.Close()
		return
	}

	userUUID, err := uuid.Parse(claims.UserID)
	if err != nil {
		zap.L().Debug("ws: invalid user id in token", zap.String("uid", claims.UserID))
		c.Close()
		return
	}

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Conn:   &realtime.WebSocketConn{Conn: c},
		Send:   make(chan []byte, 256),
	}

	h.Hub.RegisterClient(client)
	defer h.Hub.UnregisterClient(client)

	// hub -> client
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// client -> server: only keepalives are expected
	for {
		var payload map[string]interface{}
		if err := c.ReadJSON(&payload); err != nil {
			break
		}
		if msgType, ok := payload["type"].(string); ok && msgType == "pong" {
			continue
		}
	}
}
