package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-engine/idempotency"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of idempotency.Store
 * SET NX with a TTL gives the atomic insert-if-absent the coordinator
 * needs; record expiry is delegated to Redis key expiry so an expired
 * claim simply vanishes
 */

// keyPrefix namespaces idempotency records: idempotency:{key}
const keyPrefix = "idempotency"

type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and returns a store
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing Redis client
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// InsertIfAbsent atomically inserts rec under key with the given TTL.
// Returns true if the insert happened.
func (s *Store) InsertIfAbsent(ctx context.Context, key string, rec idempotency.Record, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling record: %w", err)
	}

	inserted, err := s.client.SetNX(ctx, storageKey(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inserting record: %w", err)
	}

	return inserted, nil
}

// Get retrieves the record for key; a missing or expired key is absent
func (s *Store) Get(ctx context.Context, key string) (idempotency.Record, bool, error) {
	data, err := s.client.Get(ctx, storageKey(key)).Bytes()
	if err == redis.Nil {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("getting record: %w", err)
	}

	var rec idempotency.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("unmarshaling record: %w", err)
	}

	return rec, true, nil
}

// Update overwrites the record for key, extending the key's lifetime
// to rec.ExpiresAt
func (s *Store) Update(ctx context.Context, key string, rec idempotency.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, storageKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func storageKey(key string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}
