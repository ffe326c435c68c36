package realtime

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannelPrefix = "task_events:"

// NewRedis creates a new Redis client
func NewRedis(addr string) *redis.Client {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}

// PublishUserEvent pushes an event onto the per-user channel so hubs on other
// API nodes can deliver it too.
func PublishUserEvent(ctx context.Context, rdb EventPublisher, userID uuid.UUID, payload []byte) error {
	return rdb.Publish(ctx, eventChannelPrefix+userID.String(), payload).Err()
}

// RunEventBridge subscribes to all task_events channels and forwards messages
// into the local hub. Blocks until ctx is cancelled; run it in a goroutine.
func RunEventBridge(ctx context.Context, rdb *redis.Client, hub *Hub, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	sub := rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			raw := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			userID, err := uuid.Parse(raw)
			if err != nil {
				log.Warn("event on malformed channel", zap.String("channel", msg.Channel))
				continue
			}
			if !json.Valid([]byte(msg.Payload)) {
				log.Warn("malformed task event payload", zap.String("channel", msg.Channel))
				continue
			}
			// deliver, never SendToUser: the event came from redis already
			hub.deliver(userID, []byte(msg.Payload))
		}
	}
}
