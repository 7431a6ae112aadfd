package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in Redis with a TTL equal to the session
// idle timeout, so abandoned conversations expire and restart from empty.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps a Redis client. ttl <= 0 falls back to 30 minutes.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("intake: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads the session for the identifier.
func (s *RedisStore) Get(ctx context.Context, phone string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("intake: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("intake: failed to decode session: %w", err)
	}
	return &session, nil
}

// Save persists the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Phone == "" {
		return fmt.Errorf("intake: session with phone required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("intake: failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.Phone), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("intake: failed to persist session: %w", err)
	}
	return nil
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, sessionKey(phone)).Err(); err != nil {
		return fmt.Errorf("intake: failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(phone string) string {
	return fmt.Sprintf("session:%s", phone)
}
