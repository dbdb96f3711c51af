package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/launchpad/internal/metrics"
)

// LimitResult はレート制限の判定結果。
type LimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter は拒否された場合に次のリクエストが許可されるまでの推定時間。
	RetryAfter time.Duration
}

// Limiter はキーごとのレート制限を判定するインターフェース。
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

// MemoryLimiterConfig はインメモリレートリミッターの設定。
type MemoryLimiterConfig struct {
	Limit           int           // Windowあたりの許可リクエスト数
	Window          time.Duration // 制限の単位時間
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter はプロセス内のトークンバケットでレート制限を行う。
// 単一インスタンス構成とテストで使用する。
type MemoryLimiter struct {
	config MemoryLimiterConfig
	rate   rate.Limit

	mu       sync.RWMutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter は新しいMemoryLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryLimiter(config MemoryLimiterConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		config:   config,
		rate:     rate.Limit(float64(config.Limit) / config.Window.Seconds()),
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow はキーのトークンを1つ消費できるかを判定する。
func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	lim := l.getOrCreate(key)
	now := time.Now()
	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	res := LimitResult{
		Allowed:   allowed,
		Limit:     l.config.Limit,
		Remaining: max(0, int(math.Floor(tokens))),
		ResetAt:   now.Add(l.secondsFor(float64(l.config.Limit) - tokens)),
	}
	if !allowed {
		res.RetryAfter = l.secondsFor(1 - tokens)
	}
	return res, nil
}

// Len は現在管理されているエントリ数を返す。テスト用。
func (l *MemoryLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// secondsFor はn個のトークンが補充されるまでの時間を返す。
func (l *MemoryLimiter) secondsFor(n float64) time.Duration {
	if n <= 0 || l.rate <= 0 {
		return 0
	}
	return time.Duration(n / float64(l.rate) * float64(time.Second))
}

// getOrCreate はキーのリミッターを取得または作成する。
func (l *MemoryLimiter) getOrCreate(key string) *rate.Limiter {
	l.mu.RLock()
	kl, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		l.mu.Lock()
		kl.lastAccess = time.Now()
		l.mu.Unlock()
		return kl.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// ダブルチェック
	if kl, exists := l.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(l.rate, l.config.Limit)
	l.limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからWindowとCleanupIntervalの大きい方の2倍を超えたエントリを削除する。
// この時点でバケットは満杯に戻っているため、削除しても判定は変わらない。
func (l *MemoryLimiter) cleanup(now time.Time) {
	ttl := 2 * max(l.config.CleanupInterval, l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}

// RedisLimiter はRedisの固定ウィンドウカウンターでレート制限を行う。
// 複数インスタンスで制限を共有する場合に使用する。
type RedisLimiter struct {
	client goredis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter は新しいRedisLimiterを生成する。
// prefixは制限種別ごとにキー空間を分けるために使用する。
func NewRedisLimiter(client goredis.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow は現在のウィンドウのカウンターを1増やし、上限以内かを判定する。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return LimitResult{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	count := int(incr.Val())
	res := LimitResult{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(0, l.limit-count),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}

// compile-time interface check
var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)

// NewRateLimitMiddleware はレート制限ミドルウェアを返す。
// キーは認証済みならユーザーID、未認証ならクライアントIPとする。
// SessionMiddlewareの後に配置する。
// リミッターが失敗した場合はリクエストを通し、ログに記録する。
func NewRateLimitMiddleware(limiter Limiter, name string, recorder metrics.Recorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Error("rate limiter unavailable",
					slog.String("limit_type", name),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				recorder.RecordRateLimitRejection(name)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", name),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				writeRateLimitResponse(w, res.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey はレート制限のキーを返す。
// X-Forwarded-Forはクライアントが偽装できるため使用しない。
func rateLimitKey(r *http.Request) string {
	if u := UserFromContext(r.Context()); u != nil {
		return "user:" + u.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteError(w, http.StatusTooManyRequests, "Too many requests")
}
