// Package redis stores idempotency records so a retried create returns the
// original response instead of writing the ledger twice.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "tally:idem:"

// DefaultTTL bounds how long a replayed create keeps returning the stored
// response. Retries arrive within seconds; a day is generous.
const DefaultTTL = 24 * time.Hour

type record struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Open connects using a redis URL (redis://host:port/db).
func Open(ctx context.Context, url string, ttl time.Duration) (*IdempotencyStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewIdempotencyStore(rdb, ttl), nil
}

func (s *IdempotencyStore) Close() error { return s.rdb.Close() }

func (s *IdempotencyStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Get returns the stored response for key. ok is false when the key is unseen.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (body []byte, status int, ok bool, err error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, 0, false, err
	}
	return rec.Body, rec.Status, true, nil
}

// Set stores the response for key. First write wins; a concurrent retry that
// loses the race simply overwrites with an identical record.
func (s *IdempotencyStore) Set(ctx context.Context, key string, body []byte, status int) error {
	raw, err := json.Marshal(record{Status: status, Body: body})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+key, raw, s.ttl).Err()
}
