package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/frontdesk/internal/repository"
)

// KeyPrefix namespaces the per-session authenticated flag.
const KeyPrefix = "frontdesk:session:"

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

type sessionRepository struct {
	client redis.UniversalClient
}

// NewClient parses the URL, applies pool settings and pings the server.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewSessionRepository(client redis.UniversalClient) repository.SessionRepository {
	return &sessionRepository{client: client}
}

func key(sessionID string) string {
	return KeyPrefix + sessionID
}

func (r *sessionRepository) SetAuthenticated(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist session flag: %w", err)
	}
	return nil
}

func (r *sessionRepository) IsAuthenticated(ctx context.Context, sessionID string) (bool, error) {
	v, err := r.client.Get(ctx, key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session flag: %w", err)
	}
	return v == "1", nil
}

func (r *sessionRepository) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session flag: %w", err)
	}
	return nil
}

func (r *sessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
