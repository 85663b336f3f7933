package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Backplane fans room broadcasts out to every server instance.
type Backplane interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe blocks until ctx ends or the subscription fails. onReady is
	// called once the subscription is confirmed.
	Subscribe(ctx context.Context, onReady func(), deliver func(payload []byte)) error
	Close() error
}

type backplaneFrame struct {
	Room string      `json:"room"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type inboundFrame struct {
	Room string          `json:"room"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RedisBackplane publishes frames on a single Redis pub/sub channel.
type RedisBackplane struct {
	client  *redis.Client
	channel string
}

func NewRedisBackplane(client *redis.Client, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel}
}

func (b *RedisBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBackplane) Subscribe(ctx context.Context, onReady func(), deliver func(payload []byte)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if onReady != nil {
		onReady()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", b.channel)
			}
			deliver([]byte(msg.Payload))
		}
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
