package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
)

// RedisRelay carries hub messages across processes over a Redis
// pub/sub channel. The worker publishes through it and the API server
// forwards received messages into its local hub, so dashboard clients
// see alerts regardless of which process raised them.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

// NewRedisRelay connects to Redis and returns a relay bound to the
// configured broadcast channel
func NewRedisRelay(cfg configs.RedisConfig) (*RedisRelay, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisRelay{
		client:  client,
		channel: cfg.BroadcastChannel,
	}, nil
}

// Publish marshals the payload into a hub message and publishes it on
// the relay channel. Implements the broadcaster used by the alert
// emitter.
func (r *RedisRelay) Publish(topic string, payload interface{}) {
	msg := Message{Type: topic, Data: payload}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal relay message")
		return
	}

	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish relay message")
	}
}

// Forward subscribes to the relay channel and republishes every
// received message on the local hub. Blocks until the context is
// cancelled.
func (r *RedisRelay) Forward(ctx context.Context, hub *Hub) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	log.Info().Str("channel", r.channel).Msg("Broadcast relay listening")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}

			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Warn().Err(err).Msg("Discarding malformed relay message")
				continue
			}

			hub.Publish(msg.Type, msg.Data)
		}
	}
}

// Close releases the underlying Redis connection
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
