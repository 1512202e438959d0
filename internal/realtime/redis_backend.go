package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultChannel = "socialgraph:realtime"
	outboxSize     = 1024
)

type envelope struct {
	UserID string          `json:"userId,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBackend fans events out through Redis pub/sub so every server
// instance delivers to the connections it holds. Publishing is queued and
// sent by Run; a full queue drops the event.
type RedisBackend struct {
	client  *redis.Client
	hub     *Hub
	channel string
	outbox  chan envelope
	log     *zap.Logger
}

func NewRedisBackend(client *redis.Client, hub *Hub) *RedisBackend {
	return &RedisBackend{
		client:  client,
		hub:     hub,
		channel: defaultChannel,
		outbox:  make(chan envelope, outboxSize),
		log:     hub.log.Named("redis"),
	}
}

func (b *RedisBackend) Publish(_ context.Context, userID, event string, payload any) {
	b.queue(userID, event, payload)
}

func (b *RedisBackend) Broadcast(_ context.Context, event string, payload any) {
	b.queue("", event, payload)
}

func (b *RedisBackend) IsOnline(userID string) bool {
	return b.hub.IsOnline(userID)
}

func (b *RedisBackend) queue(userID, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		b.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case b.outbox <- envelope{UserID: userID, Frame: frame}:
	default:
		b.log.Warn("realtime outbox full, dropping event", zap.String("event", event))
	}
}

// Run subscribes to the shared channel and drains the outbox until ctx ends.
func (b *RedisBackend) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so nothing published by this
	// instance is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-b.outbox:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Warn("redis publish failed", zap.Error(err))
			}
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("discarding malformed realtime envelope", zap.Error(err))
				continue
			}
			if env.UserID == "" {
				b.hub.deliverAll(env.Frame)
			} else {
				b.hub.deliver(env.UserID, env.Frame)
			}
		}
	}
}
