package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const accessKeyPrefix = "access:"

// RedisAccessCache кэширует ответы HasAccess. Ошибки Redis считаются промахом.
type RedisAccessCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisAccessCache(rdb *redis.Client, logger *zap.Logger) *RedisAccessCache {
	return &RedisAccessCache{rdb: rdb, logger: logger}
}

func accessKey(studentID, teacherID string) string {
	return accessKeyPrefix + studentID + ":" + teacherID
}

func (c *RedisAccessCache) Get(ctx context.Context, studentID, teacherID string) (bool, bool) {
	val, err := c.rdb.Get(ctx, accessKey(studentID, teacherID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false
	}
	if err != nil {
		c.logger.Warn("Access cache read failed", zap.Error(err))
		return false, false
	}
	return val == "1", true
}

func (c *RedisAccessCache) Set(ctx context.Context, studentID, teacherID string, hasAccess bool, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	val := "0"
	if hasAccess {
		val = "1"
	}
	if err := c.rdb.Set(ctx, accessKey(studentID, teacherID), val, ttl).Err(); err != nil {
		c.logger.Warn("Access cache write failed", zap.Error(err))
	}
}

func (c *RedisAccessCache) Invalidate(ctx context.Context, studentID, teacherID string) {
	if err := c.rdb.Del(ctx, accessKey(studentID, teacherID)).Err(); err != nil {
		c.logger.Warn("Access cache invalidation failed", zap.Error(err))
	}
}
