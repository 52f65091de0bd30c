package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

// defaultRedisTimeout bounds individual Redis operations.
const defaultRedisTimeout = 5 * time.Second

// redisStore persists sessions as JSON values, one key per session.
// Keys carry no TTL: sessions are never deleted from durable storage.
type redisStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
	logger    observability.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg *config.RedisStoreConfig, logger observability.Logger) (Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("redis store: missing url")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid url: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "bp:session:"
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping failed: %w", err)
	}

	logger.Info("redis session store initialized",
		observability.String("keyPrefix", keyPrefix))

	return &redisStore{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Insert stores a new session record.
func (s *redisStore) Insert(ctx context.Context, sess *ProxySession) error {
	if err := sess.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis store: marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.keyPrefix+sess.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: insert session %s: %w", sess.ID, err)
	}

	return nil
}

// Get retrieves a session by id.
func (s *redisStore) Get(ctx context.Context, id string) (*ProxySession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis store: get session %s: %w", id, err)
	}

	var sess ProxySession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redis store: unmarshal session %s: %w", id, err)
	}

	return &sess, nil
}

// Close closes the Redis client.
func (s *redisStore) Close() error {
	return s.client.Close()
}
