package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/adapters/repo"
	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/cache"
	"tg-importance-bot/internal/infra/config"
	"tg-importance-bot/internal/infra/db"
	"tg-importance-bot/internal/infra/lock"
	"tg-importance-bot/internal/infra/metrics"
	"tg-importance-bot/internal/infra/queue"
)

// Repository объединяет все хранилища, которые используют сервисы.
type Repository interface {
	domain.CriteriaRepo
	domain.PostRepo
	domain.SubscriberRepo
	domain.RoleRepo
	domain.SessionRepo
	domain.ScoreJobStatusRepo
	domain.BusinessMetricRepo
}

var (
	_ Repository = (*repo.Postgres)(nil)
	_ Repository = (*memory.Store)(nil)
)

// Infra содержит подключения к внешним системам процесса.
type Infra struct {
	Repo   Repository
	Cache  domain.Cache
	Locker domain.Locker
	Redis  *redis.Client

	closers []func() error
	log     zerolog.Logger
}

// Open подключает хранилище, Redis и выбирает реализации кэша и блокировок.
// Без REDIS_ADDR используются кэш и блокировки в памяти процесса.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Infra, error) {
	in := &Infra{log: logger}

	switch cfg.Storage {
	case "postgres":
		if cfg.PGDSN == "" {
			return nil, errors.New("PG_DSN is required for postgres storage")
		}
		pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		in.closers = append(in.closers, func() error { pool.Close(); return nil })
		in.Repo = repo.NewPostgres(pool)
	case "memory":
		logger.Warn().Msg("app: используется хранилище в памяти, данные не переживут перезапуск")
		in.Repo = memory.New()
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err := client.Ping(pingCtx).Err()
		cancel()
		metrics.ObserveNetworkRequest("redis", "ping", cfg.RedisAddr, start, err)
		if err != nil {
			_ = client.Close()
			_ = in.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		in.closers = append(in.closers, client.Close)
		in.Redis = client
		in.Cache = cache.NewRedis(client, "tgimp:cache:")
		in.Locker = lock.NewRedis(client, "tgimp:lock:", cfg.Pipeline.LockTTL, logger)
	} else {
		in.Cache = cache.NewMemory(cfg.Pipeline.DedupeSize, cfg.Pipeline.DedupeTTL)
		in.Locker = lock.NewKeyed()
	}
	return in, nil
}

// Queue открывает очередь задач оценки: RabbitMQ, если задан RABBITMQ_URL, иначе список Redis.
func (in *Infra) Queue(cfg config.AppConfig) (domain.MessageQueue, error) {
	switch {
	case cfg.RabbitURL != "":
		q, err := queue.NewRabbitMessageQueue(cfg.RabbitURL, cfg.Queues.Messages, cfg.Queues.Prefetch)
		if err != nil {
			return nil, fmt.Errorf("open rabbitmq queue: %w", err)
		}
		in.closers = append(in.closers, q.Close)
		return q, nil
	case in.Redis != nil:
		return queue.NewRedisMessageQueue(in.Redis, "tgimp:queue:"+cfg.Queues.Messages), nil
	default:
		return nil, errors.New("no message queue configured: set RABBITMQ_URL or REDIS_ADDR")
	}
}

// Close закрывает подключения в обратном порядке.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}
