package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/chat-server/internal/config"
	"github.com/mohamedkhairy/chat-server/internal/models"
	"github.com/mohamedkhairy/chat-server/pkg/logger"
)

// MessageCache defines a bounded cache of recent messages
type MessageCache interface {
	// Push appends a message to the cache, trimming to capacity
	Push(ctx context.Context, msg *models.Message) error

	// Recent retrieves up to limit cached messages, oldest first
	Recent(ctx context.Context, limit int) ([]*models.Message, error)

	// Close closes the cache connection
	Close() error
}

// RedisMessageCache implements MessageCache on a Redis list
type RedisMessageCache struct {
	client   *redis.Client
	key      string
	capacity int64
}

// NewRedisMessageCache creates a new Redis-backed message cache
func NewRedisMessageCache(cfg config.RedisConfig, key string, capacity int) (*RedisMessageCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("cache_key", key),
		logger.Int("capacity", capacity),
	)

	return &RedisMessageCache{
		client:   rdb,
		key:      key,
		capacity: int64(capacity),
	}, nil
}

// Push appends a message to the cache, trimming to capacity
func (c *RedisMessageCache) Push(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.RPush(ctx, c.key, string(data))
	pipe.LTrim(ctx, c.key, -c.capacity, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push message to cache: %w", err)
	}

	return nil
}

// Recent retrieves up to limit cached messages, oldest first
func (c *RedisMessageCache) Recent(ctx context.Context, limit int) ([]*models.Message, error) {
	values, err := c.client.LRange(ctx, c.key, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read message cache: %w", err)
	}

	messages := make([]*models.Message, 0, len(values))
	for _, value := range values {
		var msg models.Message
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			logger.Warn("Skipping malformed cached message",
				logger.ErrorField(err),
			)
			continue
		}
		messages = append(messages, &msg)
	}

	return messages, nil
}

// Close closes the cache connection
func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
