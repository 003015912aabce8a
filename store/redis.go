package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SessionStore using one Redis hash per user.
// Keys are <prefix>session:<userID>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ SessionStore = (*RedisStore)(nil)

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// KeyPrefix is prepended to all keys (default: "sessiongate:").
	// typically ends with a colon.
	KeyPrefix string
}

// NewRedis creates a Redis session store from an existing client and key prefix.
func NewRedis(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}
}

// NewRedisFromConfig connects to Redis and verifies connectivity.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sessiongate:"
	}

	return NewRedis(client, prefix), nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + "session:" + userID
}

// touchScript advances last_activity only when the hash exists, is not
// stale (ARGV[2]) and the new value is larger.
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local current = tonumber(redis.call("HGET", KEYS[1], "last_activity")) or 0
if current <= 0 or current < tonumber(ARGV[2]) then
	return 0
end
if tonumber(ARGV[1]) > current then
	redis.call("HSET", KEYS[1], "last_activity", ARGV[1])
end
return 1
`)

// deleteStaleScript deletes the hash only when its last_activity is missing
// or before ARGV[1].
var deleteStaleScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local current = tonumber(redis.call("HGET", KEYS[1], "last_activity")) or 0
if current > 0 and current >= tonumber(ARGV[1]) then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Get returns the session for userID.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisSession(userID, fields), nil
}

// Put creates or overwrites the user's session hash.
func (s *RedisStore) Put(ctx context.Context, session *Session) error {
	if err := s.client.HSet(ctx, s.key(session.UserID), encodeRedisSession(session)).Err(); err != nil {
		return fmt.Errorf("redis: failed to save session: %w", err)
	}
	return nil
}

// PutIfAdmissible uses WATCH/MULTI so a concurrent write to the same hash
// aborts the transaction instead of being overwritten.
func (s *RedisStore) PutIfAdmissible(ctx context.Context, session *Session, staleBefore time.Time) (bool, error) {
	key := s.key(session.UserID)
	written := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "device_id", "last_activity").Result()
		if err != nil {
			return err
		}
		if device, ok := vals[0].(string); ok {
			last := fromMillis(parseMillis(vals[1]))
			if device != session.DeviceID && !last.Before(staleBefore) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeRedisSession(session))
			return nil
		})
		if err != nil {
			return err
		}
		written = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: failed to save session: %w", err)
	}
	return written, nil
}

// Touch advances last_activity if the hash exists and has not gone stale.
func (s *RedisStore) Touch(ctx context.Context, userID string, at, staleBefore time.Time) error {
	if err := touchScript.Run(ctx, s.client, []string{s.key(userID)}, toMillis(at), toMillis(staleBefore)).Err(); err != nil {
		return fmt.Errorf("redis: failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the user's session hash.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete session: %w", err)
	}
	return nil
}

// DeleteIfStale removes the user's hash only if it has gone stale.
func (s *RedisStore) DeleteIfStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error) {
	n, err := deleteStaleScript.Run(ctx, s.client, []string{s.key(userID)}, toMillis(staleBefore)).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to delete stale session: %w", err)
	}
	return n > 0, nil
}

// List scans every session hash under the prefix.
func (s *RedisStore) List(ctx context.Context) ([]*Session, error) {
	return s.scan(ctx, func(*Session) bool { return true })
}

// ListByRole scans every session hash and keeps those with the given role.
func (s *RedisStore) ListByRole(ctx context.Context, role string) ([]*Session, error) {
	return s.scan(ctx, func(session *Session) bool { return session.Role == role })
}

func (s *RedisStore) scan(ctx context.Context, keep func(*Session) bool) ([]*Session, error) {
	pattern := s.key("*")
	keyPrefix := s.key("")

	var sessions []*Session
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: failed to read session %s: %w", key, err)
		}
		if len(fields) == 0 {
			// Deleted between SCAN and HGETALL.
			continue
		}
		session := decodeRedisSession(key[len(keyPrefix):], fields)
		if keep(session) {
			sessions = append(sessions, session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to scan sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRedisSession(session *Session) map[string]any {
	return map[string]any{
		"user_id":       session.UserID,
		"role":          session.Role,
		"device_id":     session.DeviceID,
		"device_label":  session.DeviceLabel,
		"ip":            session.IP,
		"city":          session.City,
		"country":       session.Country,
		"login_time":    toMillis(session.LoginTime),
		"last_activity": toMillis(session.LastActivity),
	}
}

func decodeRedisSession(userID string, fields map[string]string) *Session {
	return &Session{
		UserID:       userID,
		Role:         fields["role"],
		DeviceID:     fields["device_id"],
		DeviceLabel:  fields["device_label"],
		IP:           fields["ip"],
		City:         fields["city"],
		Country:      fields["country"],
		LoginTime:    fromMillis(parseMillis(fields["login_time"])),
		LastActivity: fromMillis(parseMillis(fields["last_activity"])),
	}
}

// parseMillis returns 0 for anything that is not a decimal integer.
func parseMillis(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
