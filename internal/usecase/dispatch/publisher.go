package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
	"tg-importance-bot/internal/infra/retry"
)

// PublisherOptions задаёт таймаут и повторы отправки в канал.
type PublisherOptions struct {
	Timeout  time.Duration
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Publisher публикует посты в канал.
type Publisher struct {
	sender domain.Sender
	policy retry.Policy
	log    zerolog.Logger
}

// NewPublisher создаёт публикатор.
func NewPublisher(sender domain.Sender, opts PublisherOptions, logger zerolog.Logger) *Publisher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	return &Publisher{
		sender: sender,
		policy: retry.Policy{Attempts: opts.Attempts, Timeout: opts.Timeout, Initial: opts.Initial, Max: opts.Max},
		log:    logger,
	}
}

// Publish отправляет пост в канал и возвращает идентификатор сообщения.
// Ошибка всегда оборачивает ErrPublicationFailed.
func (p *Publisher) Publish(ctx context.Context, channelID int64, post domain.Post) (int, error) {
	if channelID == 0 {
		metrics.PublishAttempts.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: publish channel is not configured", domain.ErrPublicationFailed)
	}
	text := FormatPublication(post)
	var messageID int
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		id, err := p.sender.Send(domain.WithPostID(ctx, post.ID), channelID, text)
		if err != nil {
			p.log.Warn().Err(err).Str("post", post.ID).Msg("dispatch: send attempt failed")
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		metrics.PublishAttempts.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrPublicationFailed, err)
	}
	metrics.PublishAttempts.WithLabelValues("success").Inc()
	p.log.Info().Str("post", post.ID).Int("message_id", messageID).Msg("dispatch: post published")
	return messageID, nil
}
