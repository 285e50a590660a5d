package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Decision 一次限流判定
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration // 距离额度恢复的时间
}

// Limiter 按 key 判定请求是否放行
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Name() string
}

// WindowCounter 固定窗口计数器，由 Redis 客户端实现
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// WindowLimiter 基于共享计数器的固定窗口限流，多实例部署时共享额度
type WindowLimiter struct {
	counter WindowCounter
	max     int
	window  time.Duration
}

// NewWindowLimiter 创建固定窗口限流器
func NewWindowLimiter(counter WindowCounter, max int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{counter: counter, max: max, window: window}
}

// Name 限流器名称
func (l *WindowLimiter) Name() string { return "redis" }

// Allow 计数加一并判定
func (l *WindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.counter.IncrementWindow(ctx, key, l.window)
	if err != nil {
		return Decision{}, err
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		Reset:     ttl,
	}, nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter 进程内令牌桶限流，每个 key 的桶容量为 max，按 max/window 匀速补充
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	max      int
	window   time.Duration
	every    rate.Limit
	now      func() time.Time
	swept    time.Time
}

// NewLocalLimiter 创建进程内限流器
func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		max:      max,
		window:   window,
		every:    rate.Limit(float64(max) / window.Seconds()),
		now:      time.Now,
	}
}

// Name 限流器名称
func (l *LocalLimiter) Name() string { return "memory" }

// Allow 消耗一个令牌
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.max)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	allowed := v.limiter.AllowN(now, 1)
	tokens := v.limiter.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	// 令牌补满所需时间
	missing := float64(l.max) - tokens
	reset := time.Duration(missing / float64(l.every) * float64(time.Second))

	return Decision{Allowed: allowed, Limit: l.max, Remaining: remaining, Reset: reset}, nil
}

// sweep 清理超过一个窗口未访问的 key（桶已补满，删除不影响判定）
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.visitors, key)
		}
	}
	l.swept = now
}

// RateLimitByIP 按客户端 IP 限流
//
// 限流后端出错时放行请求，只记录日志。onBlock 可为空。
func RateLimitByIP(limiter Limiter, log *zap.Logger, onBlock func(limiter string)) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()

		decision, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", zap.String("limiter", limiter.Name()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(decision.Reset.Seconds()))))

		if !decision.Allowed {
			if onBlock != nil {
				onBlock(limiter.Name())
			}
			log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.Reset.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests, please try again later.",
			})
			return
		}

		c.Next()
	}
}
