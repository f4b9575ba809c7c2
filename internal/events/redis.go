package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "methodsec:authz"

// streamAdder is the slice of the redis client the publisher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends events to a Redis stream, capped at MaxLen entries.
type RedisStream struct {
	client streamAdder
	stream string
	maxLen int64
	close  func() error
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

func NewRedisStream(cfg RedisConfig) *RedisStream {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	r := newRedisStream(client, cfg.Stream, cfg.MaxLen)
	r.close = client.Close
	return r
}

func newRedisStream(c streamAdder, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStream{client: c, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Publish(ctx context.Context, e Event) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"invocation_id": e.InvocationID,
			"method":        e.Method,
			"stage":         e.Stage,
			"outcome":       e.Outcome,
			"reason":        e.Reason,
			"principal":     e.Principal,
			"at":            e.At.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis_xadd: %w", err)
	}
	return nil
}

func (r *RedisStream) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
