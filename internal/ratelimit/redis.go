package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RedisLimiter — скользящее окно на sorted set, разделяемое между инстансами.
// При недоступности Redis лимитер пропускает запрос (fail-open): доступность
// магазина важнее строгости лимита.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
	logger *log.Entry
	now    func() time.Time
}

// NewRedisLimiter создаёт лимитер: не более max обращений на ключ за window.
func NewRedisLimiter(client *redis.Client, window time.Duration, max int, logger *log.Entry) *RedisLimiter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if max <= 0 {
		max = 60
	}
	if logger == nil {
		logger = log.New().WithField("component", "ratelimit")
	}
	return &RedisLimiter{client: client, window: window, max: max, logger: logger, now: time.Now}
}

// Allow регистрирует обращение и сообщает, укладывается ли ключ в лимит.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	redisKey := limitKey(key)
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("rate limit store unavailable, failing open")
		return true, nil
	}

	return count.Val() <= int64(l.max), nil
}

func limitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

var _ domain.RateLimiter = (*RedisLimiter)(nil)
