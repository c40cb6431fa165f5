package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Each blob is a single JSON value
// carrying the payload and a monotonic revision counter; conditional
// writes run inside a WATCH transaction so a concurrent writer causes
// ErrRevisionMismatch rather than a lost update.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// redisBlob is the stored representation of one blob.
type redisBlob struct {
	Rev  uint64 `json:"rev"`
	Text string `json:"text"`
}

// NewRedisStore creates a Redis-backed store. Prefix may be empty; the
// TTL bounds how long an abandoned session lingers (zero disables expiry).
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "coview:blob:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

// Get returns the payload and revision stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, string, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("redis get %s: %w", key, err)
	}

	var blob redisBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return "", "", fmt.Errorf("redis get %s: corrupt blob: %w", key, err)
	}
	return blob.Text, strconv.FormatUint(blob.Rev, 10), nil
}

// Put stores text under key when prevRev matches the current revision.
func (r *RedisStore) Put(ctx context.Context, key, text, prevRev string) (string, error) {
	fullKey := r.key(key)
	var newRev uint64

	txn := func(tx *redis.Tx) error {
		var current redisBlob
		raw, err := tx.Get(ctx, fullKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if prevRev != "" {
				return ErrRevisionMismatch
			}
		case err != nil:
			return fmt.Errorf("redis put %s: %w", key, err)
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("redis put %s: corrupt blob: %w", key, err)
			}
			if prevRev != strconv.FormatUint(current.Rev, 10) {
				return ErrRevisionMismatch
			}
		}

		newRev = current.Rev + 1
		payload, err := json.Marshal(redisBlob{Rev: newRev, Text: text})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, payload, r.ttl)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txn, fullKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer committed between our read and the EXEC.
		return "", ErrRevisionMismatch
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(newRev, 10), nil
}
