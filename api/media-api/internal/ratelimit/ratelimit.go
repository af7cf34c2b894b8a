// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

const keyPrefix = "capture:ratelimit:"

// consumeScript is an atomic token bucket: refill based on elapsed time,
// then try to take one token. Returns {allowed, remaining}.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local elapsed = now - last_refill
	local refilled = math.floor((elapsed / window) * refill)
	if refilled > 0 then
		tokens = math.min(capacity, tokens + refilled)
		last_refill = now
	end

	local allowed = 0
	if tokens > 0 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
	redis.call('EXPIRE', key, window * 2)
	return {allowed, tokens}
`)

// Limiter bounds how often one caller may hit the upload surface.
type Limiter interface {
	// Allow consumes one token for key. Returns whether the call may
	// proceed and how many tokens remain.
	Allow(ctx context.Context, key string) (bool, int64, error)

	// Reset clears the bucket for key.
	Reset(ctx context.Context, key string) error
}

type tokenBucket struct {
	client   *redis.Client
	logger   commons.Logger
	capacity int64
	refill   int64
	window   time.Duration
	now      func() time.Time
}

// NewTokenBucket creates a redis-backed token bucket limiter. Refill is
// per minute.
func NewTokenBucket(client *redis.Client, cfg configs.RatelimitConfig, logger commons.Logger) Limiter {
	return &tokenBucket{
		client:   client,
		logger:   logger,
		capacity: int64(cfg.Capacity),
		refill:   int64(cfg.Refill),
		window:   time.Minute,
		now:      time.Now,
	}
}

func (tb *tokenBucket) Allow(ctx context.Context, key string) (bool, int64, error) {
	result, err := consumeScript.Run(ctx, tb.client, []string{keyPrefix + key},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), tb.now().Unix()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result %T", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	return allowed == 1, remaining, nil
}

func (tb *tokenBucket) Reset(ctx context.Context, key string) error {
	return tb.client.Del(ctx, keyPrefix+key).Err()
}

// Middleware applies the limiter per client IP. A limiter error fails
// open: redis outages must not block uploads.
func Middleware(limiter Limiter, logger commons.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warnf("rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
