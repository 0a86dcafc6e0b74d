package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamClient appends entries to capped redis streams.
type StreamClient struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // 0 = unlimited
}

// NewStreamClient connects and pings redis at addr.
func NewStreamClient(ctx context.Context, addr, password string, db int, streamMaxLen int64, logger *zap.Logger) (*StreamClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.Int64("streamMaxLen", streamMaxLen))

	return NewStreamClientFrom(rdb, streamMaxLen, logger), nil
}

// NewStreamClientFrom wraps an existing client.
func NewStreamClientFrom(rdb *redis.Client, streamMaxLen int64, logger *zap.Logger) *StreamClient {
	return &StreamClient{client: rdb, logger: logger, streamMaxLen: streamMaxLen}
}

// XAdd appends values to stream, trimming it approximately to the max length.
func (c *StreamClient) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (c *StreamClient) Close() error {
	return c.client.Close()
}
