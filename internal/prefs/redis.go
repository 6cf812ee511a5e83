package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps selections in Redis.  Expiry is delegated to the key
// TTL so stale selections disappear without a sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps client.  Keys are "<prefix>:<device>:selection".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "prefs"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStore) key(deviceID string) string {
	return fmt.Sprintf("%s:%s:selection", r.prefix, deviceID)
}

func (r *RedisStore) LoadSelection(ctx context.Context, deviceID string) (Selection, bool, error) {
	raw, err := r.client.Get(ctx, r.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Selection{}, false, nil
	}
	if err != nil {
		return Selection{}, false, err
	}
	var s Selection
	if err := json.Unmarshal(raw, &s); err != nil {
		// unreadable value, treat as absent
		_ = r.client.Del(ctx, r.key(deviceID)).Err()
		return Selection{}, false, nil
	}
	if s.Expired(r.now()) {
		return Selection{}, false, nil
	}
	return s, true, nil
}

func (r *RedisStore) SaveSelection(ctx context.Context, deviceID string, s Selection) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.ClearSelection(ctx, deviceID)
		}
	}
	return r.client.Set(ctx, r.key(deviceID), data, ttl).Err()
}

func (r *RedisStore) ClearSelection(ctx context.Context, deviceID string) error {
	return r.client.Del(ctx, r.key(deviceID)).Err()
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
