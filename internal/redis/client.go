// Package redis builds the shared Redis client used by the episode cache, queue sink
// and run tracker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/retry"
)

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string `json:"-"`
	DB       int
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for one connection check.
const connectionTimeout = 5 * time.Second

// NewClient creates a Redis client and verifies it can reach the server, retrying
// transient failures with backoff.
func NewClient(ctx context.Context, cfg Config, retryCfg retry.Config, log logger.Logger) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	if log == nil {
		log = logger.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Retry(ctx, retryCfg, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("Connected to Redis", logger.String("address", cfg.Address), logger.Int("db", cfg.DB))
	return client, nil
}
