package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ventana deslizante sobre un sorted set: cada intento es un miembro con su
// instante en milisegundos como score.
// KEYS[1] clave; ARGV: corte, ahora, máximo, ventana en ms, miembro.
const redisSlidingWindowScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`

const (
	VerificationLimiterPrefix = "auth:rl:verify:"
	ResetLimiterPrefix        = "auth:rl:reset:"
	LoginLimiterPrefix        = "auth:rl:login:"

	defaultLimiterPrefix = "auth:rl:"
	redisLimiterTimeout  = 500 * time.Millisecond
)

type redisLimiterClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisAttemptLimiter struct {
	client redisLimiterClient
	window time.Duration
	max    int
	prefix string
	now    func() time.Time
}

// NewRedisLimiters comparte los contadores entre instancias, con un prefijo
// por flujo.
func NewRedisLimiters(client *redis.Client, issuance, login LimitPolicy) Limiters {
	return Limiters{
		Verification: NewRedisAttemptLimiter(client, VerificationLimiterPrefix, issuance.Window, issuance.Max),
		Reset:        NewRedisAttemptLimiter(client, ResetLimiterPrefix, issuance.Window, issuance.Max),
		Login:        NewRedisAttemptLimiter(client, LoginLimiterPrefix, login.Window, login.Max),
	}
}

// NewRedisAttemptLimiter deja pasar el intento ante errores de Redis.
func NewRedisAttemptLimiter(client *redis.Client, prefix string, window time.Duration, max int) AttemptLimiter {
	if client == nil {
		return nil
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if prefix == "" {
		prefix = defaultLimiterPrefix
	}
	return &redisAttemptLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *redisAttemptLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	redisKey, ok := l.key(key)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisLimiterTimeout)
	defer cancel()

	now := l.now().UnixMilli()
	ok, err := l.client.Eval(ctx, redisSlidingWindowScript, []string{redisKey},
		strconv.FormatInt(now-l.window.Milliseconds(), 10),
		strconv.FormatInt(now, 10),
		l.max,
		l.window.Milliseconds(),
		strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Bool()
	if err != nil {
		return true
	}
	return ok
}

func (l *redisAttemptLimiter) Blocked(key string) bool {
	if l == nil || l.client == nil {
		return false
	}
	redisKey, ok := l.key(key)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisLimiterTimeout)
	defer cancel()

	cutoff := l.now().UnixMilli() - l.window.Milliseconds()
	count, err := l.client.ZCount(ctx, redisKey, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return false
	}
	return count >= int64(l.max)
}

func (l *redisAttemptLimiter) Reset(key string) {
	if l == nil || l.client == nil {
		return
	}
	redisKey, ok := l.key(key)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisLimiterTimeout)
	defer cancel()
	_ = l.client.Del(ctx, redisKey).Err()
}

func (l *redisAttemptLimiter) key(key string) (string, bool) {
	normalized := limiterKey(key)
	if normalized == "" {
		return "", false
	}
	return l.prefix + normalized, true
}
