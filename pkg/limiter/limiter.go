// Package limiter token bucket rate limiting keyed per caller
// Package limiter 按调用方区分的令牌桶限流
package limiter

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face 限流器接口
type Face interface {
	// Key 返回当前请求的限流键
	Key(c *gin.Context) string
	// GetBucket returns the bucket for key; false disables limiting for it
	// GetBucket 返回 key 对应的令牌桶，false 表示不限流
	GetBucket(key string) (*ratelimit.Bucket, bool)
	// RetryAfter 桶空时建议的等待时长
	RetryAfter() time.Duration
}

// BucketRule 令牌桶规则：每个 Window 内最多 Max 次
type BucketRule struct {
	Window time.Duration
	Max    int64
}

type bucketEntry struct {
	bucket   *ratelimit.Bucket
	lastUsed time.Time
}

// KeyLimiter one bucket per key, created on first use
// KeyLimiter 每个键一个令牌桶，首次使用时创建
type KeyLimiter struct {
	rule    BucketRule
	keyFunc func(c *gin.Context) string

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	now     func() time.Time
}

// NewKeyLimiter keyFunc picks the limiting key (API key or client IP)
// NewKeyLimiter keyFunc 决定限流键（API Key 或客户端 IP）
func NewKeyLimiter(rule BucketRule, keyFunc func(c *gin.Context) string) *KeyLimiter {
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	if rule.Max <= 0 {
		rule.Max = 10
	}
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &KeyLimiter{
		rule:    rule,
		keyFunc: keyFunc,
		buckets: make(map[string]*bucketEntry),
		now:     time.Now,
	}
}

func (l *KeyLimiter) Key(c *gin.Context) string {
	return l.keyFunc(c)
}

// RetryAfter a bucket refills its whole quota once per window
func (l *KeyLimiter) RetryAfter() time.Duration {
	return l.rule.Window
}

func (l *KeyLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.buckets[key]
	if !ok {
		// the whole quota refills at the end of each window
		e = &bucketEntry{bucket: ratelimit.NewBucketWithQuantum(l.rule.Window, l.rule.Max, l.rule.Max)}
		l.buckets[key] = e
	}
	e.lastUsed = l.now()
	return e.bucket, true
}

// Prune drops buckets idle for longer than idle and returns how many were removed
// Prune 清理空闲超过 idle 的令牌桶，返回清理数量
func (l *KeyLimiter) Prune(idle time.Duration) int {
	deadline := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.buckets {
		if e.lastUsed.Before(deadline) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len 当前令牌桶数量
func (l *KeyLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
