package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	currentThreadPrefix = "current-thread:"
	threadsPrefix       = "threads:"
)

// RedisStorage keeps the directory under current-thread:<user> (string)
// and threads:<user> (list) keys.
type RedisStorage struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStorage(redisURL string, logger *zap.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opts.Addr))
	return NewRedisStorageFromClient(client, logger), nil
}

func NewRedisStorageFromClient(client *redis.Client, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

func currentThreadKey(userID string) string { return currentThreadPrefix + userID }

func threadsKey(userID string) string { return threadsPrefix + userID }

func (s *RedisStorage) GetCurrentThread(ctx context.Context, userID string) (string, error) {
	current, err := s.client.Get(ctx, currentThreadKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current thread: %w", err)
	}
	return current, nil
}

func (s *RedisStorage) SetCurrentThread(ctx context.Context, userID, threadID string) error {
	if err := s.client.Set(ctx, currentThreadKey(userID), threadID, 0).Err(); err != nil {
		return fmt.Errorf("set current thread: %w", err)
	}
	return nil
}

func (s *RedisStorage) GetThreads(ctx context.Context, userID string) ([]string, error) {
	threads, err := s.client.LRange(ctx, threadsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get threads: %w", err)
	}
	if threads == nil {
		threads = []string{}
	}
	return threads, nil
}

func (s *RedisStorage) SetThreads(ctx context.Context, userID string, threadIDs []string) error {
	key := threadsKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(threadIDs) > 0 {
			values := make([]interface{}, len(threadIDs))
			for i, id := range threadIDs {
				values[i] = id
			}
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set threads: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
