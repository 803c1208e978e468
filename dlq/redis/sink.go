package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis Streams implementation of dlq.Sink
 * Dead-lettered envelopes land on one stream; the stream entry ID
 * doubles as the DLQ message ID for later inspection or replay
 */

// streamKey is the dead-letter stream: webhooks:dlq
const streamKey = "webhooks:dlq"

type Sink struct {
	client *redis.Client
}

// NewSink connects to Redis and returns a dead-letter sink
func NewSink(addr, password string, db int) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Sink{client: client}, nil
}

// NewSinkWithClient wraps an existing Redis client
func NewSinkWithClient(client *redis.Client) *Sink {
	return &Sink{client: client}
}

// Submit appends the envelope and its final error to the dead-letter stream
func (s *Sink) Submit(ctx context.Context, env webhook.Envelope, cause error) (string, error) {
	headersJSON, err := json.Marshal(env.Headers)
	if err != nil {
		return "", fmt.Errorf("marshaling headers: %w", err)
	}

	msgID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"webhook_id":  env.ID,
			"event_type":  env.EventType,
			"received_at": env.ReceivedAt.Unix(),
			"payload":     env.RawBody,
			"headers":     string(headersJSON),
			"source":      env.SourceAddr,
			"error":       cause.Error(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("adding to dead-letter stream: %w", err)
	}

	return msgID, nil
}

// Close closes the Redis connection
func (s *Sink) Close() error {
	return s.client.Close()
}
