package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "tonegate:decisions"

// RedisStreamSink appends events to a Redis stream with XADD. Each entry
// carries the decision and request id as top-level fields next to the
// JSON-encoded event so consumers can filter without decoding.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink connects to addr and verifies the connection. maxLen
// caps the stream approximately; zero leaves it unbounded.
func NewRedisStreamSink(addr, stream string, maxLen int64) (*RedisStreamSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStreamSinkWithClient(client, stream, maxLen), nil
}

// NewRedisStreamSinkWithClient builds a sink from an existing client.
func NewRedisStreamSinkWithClient(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis_stream:" + s.stream }

func (s *RedisStreamSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"request_id": ev.RequestID,
			"decision":   string(ev.Decision),
			"event":      string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStreamSink) Close(context.Context) error {
	return s.client.Close()
}
