package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// JSONStore keeps JSON values under a key pattern with a fixed TTL. It backs
// the order status cache and the settlement dedup marks; Postgres stays the
// source of truth for both.
type JSONStore struct {
	RDB     redis.Cmdable
	Pattern string // fmt pattern with one %s, see keys.go
	TTL     time.Duration
}

func (s JSONStore) key(id string) string { return fmt.Sprintf(s.Pattern, id) }

func (s JSONStore) Put(ctx context.Context, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, s.key(id), b, s.TTL).Err()
}

// Get decodes the value for id into out and reports whether it was present.
func (s JSONStore) Get(ctx context.Context, id string, out any) (bool, error) {
	b, err := s.RDB.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", s.key(id), err)
	}
	return true, nil
}

func (s JSONStore) Has(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, s.RDB, s.key(id))
}

func (s JSONStore) Delete(ctx context.Context, id string) error {
	return s.RDB.Del(ctx, s.key(id)).Err()
}
