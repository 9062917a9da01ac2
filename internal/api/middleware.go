// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/HotspotDeck/internal/utils"
)

// RateLimiter implements a fixed-window rate limiter keyed by client
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.RWMutex
	stopOnce sync.Once
	stop     chan struct{}
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*Visitor),
		stop:     make(chan struct{}),
	}

	go rl.cleanup(10 * time.Minute)

	return rl
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup removes visitors whose window has expired
func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, visitor := range rl.visitors {
				if now.After(visitor.Reset) {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Allow checks if a visitor is allowed to make a request
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	visitor, exists := rl.visitors[key]

	if !exists || now.After(visitor.Reset) {
		rl.visitors[key] = &Visitor{
			Limit:     limit,
			Remaining: limit - 1,
			Reset:     now.Add(window),
		}
		return true
	}

	if visitor.Remaining <= 0 {
		return false
	}

	visitor.Remaining--
	return true
}

// GetRateLimitHeaders returns the rate limit headers
func (rl *RateLimiter) GetRateLimitHeaders(key string, limit int, window time.Duration) (int, int, int64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	visitor, exists := rl.visitors[key]
	if !exists {
		return limit, limit, time.Now().Add(window).Unix()
	}

	remaining := visitor.Remaining
	if remaining < 0 {
		remaining = 0
	}
	return limit, remaining, visitor.Reset.Unix()
}

// Middleware creates a rate limiting middleware; limit <= 0 disables it
func (rl *RateLimiter) Middleware(limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		key := keyFunc(c)
		allowed := rl.Allow(key, limit, window)

		l, remaining, reset := rl.GetRateLimitHeaders(key, limit, window)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", l))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":   false,
				"message":   "Rate limit exceeded",
				"code":      ErrorRateLimited,
				"timestamp": time.Now().Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ByIP applies rate limiting based on client IP address
func (rl *RateLimiter) ByIP(limit int, window time.Duration) gin.HandlerFunc {
	return rl.Middleware(limit, window, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RequestID 为每个请求分配 ID，沿用客户端提供的 X-Request-ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger 记录访问日志并统计请求指标
func RequestLogger(logger *utils.Logger, metrics *utils.DeckMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		duration := time.Since(start)

		if metrics != nil {
			metrics.RecordAPIRequest(path, c.Request.Method, status, duration)
		}
		if logger == nil {
			return
		}

		fields := map[string]interface{}{
			"method":      strings.ToUpper(c.Request.Method),
			"path":        path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  c.GetString("request_id"),
		}
		if id := c.Param("id"); id != "" {
			fields["session_id"] = id
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields)
		case status >= 400:
			logger.Warn("HTTP request", fields)
		default:
			logger.Debug("HTTP request", fields)
		}
	}
}
