package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisChannel is the pub/sub channel activity is published on.
const DefaultRedisChannel = "taskforge:activity"

// RedisBus publishes activity through Redis pub/sub so every instance of the
// service delivers it to its own subscribers. Delivery is at-most-once.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *LocalBus
}

// NewRedisBus creates a RedisBus. Call Run to start receiving.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBus{client: client, channel: channel, local: NewLocalBus()}
}

// Publish sends a to the Redis channel. Local subscribers receive it when it
// comes back through Run.
func (b *RedisBus) Publish(ctx context.Context, a *Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing activity: %w", err)
	}
	return nil
}

// Subscribe registers a local handler.
func (b *RedisBus) Subscribe(h Handler) func() {
	return b.local.Subscribe(h)
}

// Run consumes the Redis channel until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	slog.Info("activity bus subscribed", "backend", "redis", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var a Activity
			if err := json.Unmarshal([]byte(msg.Payload), &a); err != nil {
				slog.Warn("dropping malformed activity message", "error", err)
				continue
			}
			_ = b.local.Publish(ctx, &a)
		}
	}
}
