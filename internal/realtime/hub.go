// internal/realtime/hub.go
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   *WebSocketConn
	Send   chan []byte
}

// EventPublisher is the pub/sub half of the redis client the hub needs.
// *redis.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Hub fans task events out to connected websocket clients. It replaces the
// SPA's old poll-until-scored loop: the scoring worker and the admin decisions
// push task_update events here.
//
// With RDB set, events go through redis pub/sub and RunEventBridge delivers
// them on every API node, this one included. Without it the hub delivers to
// local connections only.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *zap.Logger

	RDB EventPublisher
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// BroadcastJSON sends a payload to every connected client.
func (h *Hub) BroadcastJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast payload", zap.Error(err))
		return
	}
	h.broadcast <- b
}

// SendToUser sends a message to every connection of a specific user. When a
// publisher is configured the event goes over redis and comes back through
// the bridge, so clients on other API nodes see it too.
func (h *Hub) SendToUser(userID uuid.UUID, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("marshal message", zap.Error(err))
		return
	}

	if h.RDB != nil {
		err := PublishUserEvent(context.Background(), h.RDB, userID, payload)
		if err == nil {
			return
		}
		h.log.Warn("task event publish failed, delivering locally",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	h.deliver(userID, payload)
}

// deliver writes a payload to the user's local connections. The bridge calls
// this directly so a redis-sourced event is never re-published.
func (h *Hub) deliver(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.UserID == userID {
			select {
			case client.Send <- payload:
			default:
				// slow consumer, skip rather than block
			}
		}
	}
}

// SendToTask delivers an event to both parties of a task.
func (h *Hub) SendToTask(clientID, workerID uuid.UUID, data interface{}) {
	h.SendToUser(clientID, data)
	if workerID != uuid.Nil && workerID != clientID {
		h.SendToUser(workerID, data)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("ws client registered",
				zap.String("client", client.ID), zap.String("user_id", client.UserID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(old.Send)
				h.log.Debug("ws client unregistered", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			// needs the write lock (may delete)
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}
