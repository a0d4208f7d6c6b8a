// Package cache provides a Redis-backed cache for image analysis results.
// Analyses are keyed by file content hash plus provider name, so the same
// image re-submitted within the TTL skips the provider round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/vision"
)

// Config configures the analysis cache.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// AnalysisCache stores vision.ImageAnalysis values in Redis.
type AnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// New connects to Redis and returns the cache. The connection is verified
// with a ping so misconfiguration surfaces at startup, not first use.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*AnalysisCache, error) {
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "adaptflow:analysis"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &AnalysisCache{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
		logger: logger.With(zap.String("component", "analysis_cache")),
	}, nil
}

// Key derives the cache key from the image content and provider name.
func (c *AnalysisCache) Key(imagePath, provider string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s", c.prefix, provider, hex.EncodeToString(h.Sum(nil))), nil
}

// Get returns the cached analysis, or (nil, nil) on a miss.
func (c *AnalysisCache) Get(ctx context.Context, key string) (*vision.ImageAnalysis, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var analysis vision.ImageAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		// A corrupt entry is treated as a miss and evicted.
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, nil
	}
	return &analysis, nil
}

// Set stores the analysis under key for the configured TTL.
func (c *AnalysisCache) Set(ctx context.Context, key string, analysis *vision.ImageAnalysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *AnalysisCache) Close() error {
	return c.client.Close()
}
