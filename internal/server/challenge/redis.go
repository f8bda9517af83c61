package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/redis/go-redis/v9"
)

const (
	emailKeyPrefix = "challenge:email:"
	phoneKeyPrefix = "challenge:phone:"

	// Expired email challenges are kept around briefly so verification can
	// answer "code expired" instead of "no pending challenge".
	expiredGrace = 5 * time.Minute
)

// RedisStore backs the challenge state with a shared cache so concurrently
// running instances agree on pending challenges. Expiry is enforced by
// native key TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveEmailChallenge(ctx context.Context, email string, ch *EmailChallenge) error {
	encoded, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	ttl := time.Until(ch.ExpiresAt) + expiredGrace
	if err := s.client.Set(ctx, emailKeyPrefix+email, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}
	return nil
}

func (s *RedisStore) GetEmailChallenge(ctx context.Context, email string) (*EmailChallenge, error) {
	raw, err := s.client.Get(ctx, emailKeyPrefix+email).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("challenge store unavailable: %w", err)
	}

	ch := &EmailChallenge{}
	if err := json.Unmarshal(raw, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *RedisStore) DeleteEmailChallenge(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, emailKeyPrefix+email).Err(); err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}
	return nil
}

func (s *RedisStore) SavePhoneCorrelation(ctx context.Context, phone, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, phoneKeyPrefix+phone, userID, ttl).Err(); err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}
	return nil
}

func (s *RedisStore) GetPhoneCorrelation(ctx context.Context, phone string) (string, error) {
	userID, err := s.client.Get(ctx, phoneKeyPrefix+phone).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("challenge store unavailable: %w", err)
	}
	return userID, nil
}

func (s *RedisStore) DeletePhoneCorrelation(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, phoneKeyPrefix+phone).Err(); err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}
	return nil
}
