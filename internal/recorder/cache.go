package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ProfilePilot/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LatestReportKey is the Redis key holding the latest report.
const LatestReportKey = "profilepilot:report:latest"

// RedisConfig locates the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects and pings. On failure the client is closed and nil
// is returned with the error.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   1,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// CachedRecorder serves LatestReport from Redis, falling back to an
// in-process copy and then to the wrapped store.
type CachedRecorder struct {
	Recorder
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.RWMutex
	latest *model.CycleTelemetry
}

// NewCachedRecorder wraps inner. client may be nil.
func NewCachedRecorder(inner Recorder, client *redis.Client, logger zerolog.Logger) *CachedRecorder {
	return &CachedRecorder{
		Recorder: inner,
		client:   client,
		ttl:      24 * time.Hour,
		logger:   logger.With().Str("component", "report-cache").Logger(),
	}
}

func (c *CachedRecorder) SaveReport(ctx context.Context, report model.CycleTelemetry) error {
	if err := c.Recorder.SaveReport(ctx, report); err != nil {
		return err
	}
	c.mu.Lock()
	c.latest = &report
	c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil
	}
	if err := c.client.Set(ctx, LatestReportKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache latest report")
	}
	return nil
}

func (c *CachedRecorder) LatestReport(ctx context.Context) (model.CycleTelemetry, error) {
	if c.client != nil {
		payload, err := c.client.Get(ctx, LatestReportKey).Bytes()
		switch {
		case err == nil:
			var report model.CycleTelemetry
			if jsonErr := json.Unmarshal(payload, &report); jsonErr == nil {
				return report, nil
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Debug().Err(err).Msg("redis unavailable, using local copy")
		}
	}

	c.mu.RLock()
	latest := c.latest
	c.mu.RUnlock()
	if latest != nil {
		return *latest, nil
	}

	report, err := c.Recorder.LatestReport(ctx)
	if err != nil {
		return report, err
	}
	c.mu.Lock()
	c.latest = &report
	c.mu.Unlock()
	return report, nil
}
