package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bridge relays events through a Redis pub/sub channel and into the local
// hub, so SSE clients on every instance receive the same stream.
type Bridge struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewBridge wires a Redis client to the hub.
func NewBridge(rdb *redis.Client, channel string, hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

// Publish pushes an event onto the shared channel. Errors are logged, not
// returned: realtime delivery is best-effort.
func (b *Bridge) Publish(ctx context.Context, event Event) {
	if b == nil || b.rdb == nil {
		if b != nil && b.hub != nil {
			b.hub.Broadcast(event)
		}
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal realtime event", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, body).Err(); err != nil {
		b.logger.Warn("publish realtime event", zap.Error(err))
		// Degrade to local-only delivery.
		b.hub.Broadcast(event)
	}
}

// Run subscribes to the shared channel and forwards messages into the hub
// until the context is cancelled. Intended to run in its own goroutine.
func (b *Bridge) Run(ctx context.Context) {
	if b == nil || b.rdb == nil {
		return
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("decode realtime event", zap.Error(err))
				continue
			}
			b.hub.Broadcast(event)
		}
	}
}
