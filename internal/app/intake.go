package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/dedupe"
	"tg-importance-bot/internal/infra/metrics"
)

// Intake ставит входящие сообщения в очередь оценки, отбрасывая повторные доставки.
// Повтор определяется сначала локальным LRU, затем общим для всех сборщиков кэшем.
type Intake struct {
	queue domain.MessageQueue
	seen  *dedupe.Set
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

// NewIntake создаёт приёмник. cache может быть nil.
func NewIntake(queue domain.MessageQueue, seen *dedupe.Set, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Intake {
	return &Intake{queue: queue, seen: seen, cache: cache, ttl: ttl, log: logger, now: time.Now}
}

// Handler возвращает обработчик сообщений для указанного источника.
func (i *Intake) Handler(origin domain.ScoreJobOrigin) func(ctx context.Context, msg domain.Message) error {
	return func(ctx context.Context, msg domain.Message) error {
		return i.Accept(ctx, origin, msg)
	}
}

// Accept ставит сообщение в очередь. Повторное сообщение пропускается без ошибки.
// При ошибке постановки ключ забывается, чтобы повторная доставка была принята.
func (i *Intake) Accept(ctx context.Context, origin domain.ScoreJobOrigin, msg domain.Message) error {
	key := msg.DedupeKey()
	if i.seen.Seen(key) {
		metrics.InboundDuplicates.Inc()
		return nil
	}
	job := domain.ScoreJob{ID: key, Message: msg, Origin: origin, EnqueuedAt: i.now().UTC()}
	enqueue := func() error { return i.queue.Enqueue(ctx, job) }

	var err error
	if i.cache != nil {
		enqueued := false
		err = i.cache.Once(ctx, "inbound:"+key, i.ttl, func() error {
			enqueued = true
			return enqueue()
		})
		if err == nil && !enqueued {
			metrics.InboundDuplicates.Inc()
			return nil
		}
	} else {
		err = enqueue()
	}
	if err != nil {
		i.seen.Forget(key)
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	i.log.Debug().Str("key", key).Str("origin", string(origin)).Msg("intake: message enqueued")
	return nil
}
