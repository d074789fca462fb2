package bus

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/model"
)

// Channel is the Redis PubSub channel carrying sync_complete events
// between the ingestor and the API processes.
const Channel = "cripto:sync_complete"

// RedisBridge mirrors the in-process bus onto a Redis PubSub channel so
// events survive process boundaries. Single-host deployments skip it and
// rely on the in-process path alone.
type RedisBridge struct {
	rdb *goredis.Client
	log zerolog.Logger
}

// NewRedisBridge connects to Redis and verifies connectivity.
func NewRedisBridge(ctx context.Context, addr, password string, log zerolog.Logger) (*RedisBridge, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", addr).Msg("redis bridge connected")
	return &RedisBridge{rdb: rdb, log: log}, nil
}

// Mirror republishes every event from the local subscription onto the
// Redis channel. Blocks until ctx is cancelled or events closes.
func (rb *RedisBridge) Mirror(ctx context.Context, events <-chan model.SyncResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				rb.log.Error().Err(err).Str("symbol", ev.Symbol).Msg("marshal sync_complete")
				continue
			}
			if err := rb.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
				rb.log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("redis publish failed")
			}
		}
	}
}

// Consume subscribes to the Redis channel and republishes incoming events
// onto the local bus. Blocks until ctx is cancelled.
func (rb *RedisBridge) Consume(ctx context.Context, b *Bus) {
	pubsub := rb.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	rb.log.Info().Str("channel", Channel).Msg("consuming sync_complete from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev model.SyncResult
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				rb.log.Warn().Err(err).Msg("malformed sync_complete payload")
				continue
			}
			b.Publish(ev)
		}
	}
}

// Close releases the Redis connection.
func (rb *RedisBridge) Close() error {
	return rb.rdb.Close()
}
