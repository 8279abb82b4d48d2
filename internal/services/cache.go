package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

const DefaultSearchCacheTTL = 30 * time.Minute

// SearchCache keeps provider results for identical criteria for a while so
// repeated runs do not hammer the boards.
type SearchCache interface {
	Get(ctx context.Context, provider string, criteria Criteria) ([]models.Job, bool)
	Set(ctx context.Context, provider string, criteria Criteria, jobs []models.Job)
}

type redisSearchCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSearchCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) SearchCache {
	if ttl <= 0 {
		ttl = DefaultSearchCacheTTL
	}
	return &redisSearchCache{client: client, ttl: ttl, logger: logger}
}

func SearchCacheKey(provider string, criteria Criteria) string {
	raw := strings.ToLower(strings.Join(criteria.Roles, "|") + "#" +
		strings.Join(criteria.Locations, "|") + "#" +
		fmt.Sprintf("%d#%d", criteria.postedWithinDays(), criteria.Limit))
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("search:%s:%s", provider, hex.EncodeToString(sum[:8]))
}

func (c *redisSearchCache) Get(ctx context.Context, provider string, criteria Criteria) ([]models.Job, bool) {
	key := SearchCacheKey(provider, criteria)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("failed to get cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var jobs []models.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		c.logger.Warn("failed to decode cached jobs", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return jobs, true
}

func (c *redisSearchCache) Set(ctx context.Context, provider string, criteria Criteria, jobs []models.Job) {
	key := SearchCacheKey(provider, criteria)
	data, err := json.Marshal(jobs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to set cache", zap.String("key", key), zap.Error(err))
	}
}
