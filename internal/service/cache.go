package service

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/models"
)

// ResultCache stores successful resize envelopes and async job records in
// Redis. A nil *ResultCache is valid and disables caching, so the
// pipeline works without Redis configured.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewResultCache(cfg config.RedisConfig, logger *zap.Logger) *ResultCache {
	if cfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &ResultCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}
}

type cachedResize struct {
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
}

// GetResize returns a previously cached resize envelope for the URL.
func (c *ResultCache) GetResize(ctx context.Context, imageURL string) (models.HTTPResponse, bool) {
	if c == nil {
		return models.HTTPResponse{}, false
	}

	data, err := c.client.Get(ctx, resizeCacheKey(imageURL)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache get error", zap.Error(err))
		}
		return models.HTTPResponse{}, false
	}

	var entry cachedResize
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.HTTPResponse{}, false
	}
	return models.NewHTTPResponse(entry.Body, 200, entry.ContentType), true
}

// SetResize caches a successful resize envelope. Only 200 responses with
// string bodies are cacheable; anything else is ignored.
func (c *ResultCache) SetResize(ctx context.Context, imageURL string, resp models.HTTPResponse) {
	if c == nil || resp.StatusCode != 200 {
		return
	}
	body, ok := resp.Body.(string)
	if !ok {
		return
	}

	entry := cachedResize{Body: body, ContentType: resp.Headers["Content-Type"]}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, resizeCacheKey(imageURL), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache set error", zap.Error(err))
	}
}

// SaveJob stores an async archive job record.
func (c *ResultCache) SaveJob(ctx context.Context, job *models.ArchiveJob) error {
	if c == nil {
		return fmt.Errorf("job store not configured")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return c.client.Set(ctx, jobKey(job.ID), data, c.ttl).Err()
}

// GetJob looks up an async archive job record by id.
func (c *ResultCache) GetJob(ctx context.Context, id string) (*models.ArchiveJob, error) {
	if c == nil {
		return nil, fmt.Errorf("job store not configured")
	}
	data, err := c.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var job models.ArchiveJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// HealthCheck pings Redis.
func (c *ResultCache) HealthCheck(ctx context.Context) string {
	if c == nil {
		return "not configured"
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

func resizeCacheKey(imageURL string) string {
	return fmt.Sprintf("resize_cache:%x", md5.Sum([]byte(imageURL)))
}

func jobKey(id string) string {
	return "archive_job:" + id
}
