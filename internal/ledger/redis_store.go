package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

const meetingKeyPrefix = "meeting:"

// RedisStore keeps meetings in Redis with a key TTL matching the meeting
// deadline, so expiry needs no sweep of its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores a meeting with a TTL running to its deadline.
func (s *RedisStore) Put(ctx context.Context, m *models.Meeting) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal meeting: %w", err)
	}
	ttl := time.Until(m.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, meetingKeyPrefix+m.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("store meeting: %w", err)
	}
	return nil
}

// Get retrieves a meeting by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Meeting, error) {
	data, err := s.client.Get(ctx, meetingKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	var m models.Meeting
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("decode meeting: %w", err)
	}
	return &m, nil
}

// Delete removes a meeting.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, meetingKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis evicts expired keys itself.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
