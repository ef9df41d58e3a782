package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis реализует распределённую блокировку по ключу через SET NX PX.
// Блокировка истекает через ttl, поэтому ttl должен покрывать самую долгую операцию под ней.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	log    zerolog.Logger
}

var _ domain.Locker = (*Redis)(nil)

// NewRedis создаёт распределённый блокировщик.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, poll: 50 * time.Millisecond, log: logger}
}

// Lock ожидает освобождения ключа, опрашивая Redis, пока не отменён контекст.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := r.prefix + key
	for {
		start := time.Now()
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		metrics.ObserveNetworkRequest("redis", "lock", "post", start, err)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.poll):
		}
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("lock: release failed")
		}
	}, nil
}
