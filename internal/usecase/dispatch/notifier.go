package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// DecisionPrompter отправляет администратору сообщение с кнопками «одобрить» и «отклонить».
// Отправители без поддержки кнопок получают обычное уведомление.
type DecisionPrompter interface {
	NotifyDecision(ctx context.Context, userID int64, text, postID string) error
}

// Notifier доставляет уведомления по принципу best-effort:
// ошибки логируются и учитываются в метриках, но не влияют на состояние постов.
type Notifier struct {
	sender  domain.Sender
	timeout time.Duration
	log     zerolog.Logger
}

// NewNotifier создаёт диспетчер уведомлений.
func NewNotifier(sender domain.Sender, timeout time.Duration, logger zerolog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{sender: sender, timeout: timeout, log: logger}
}

// Notify отправляет уведомление о событии одному пользователю.
func (n *Notifier) Notify(ctx context.Context, userID int64, ev domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text := Render(ev)
	var err error
	if prompter, ok := n.sender.(DecisionPrompter); ok && ev.Kind == domain.EventPostQueued && ev.Post != nil {
		err = prompter.NotifyDecision(ctx, userID, text, ev.Post.ID)
	} else {
		err = n.sender.Notify(ctx, userID, text)
	}
	metrics.ObserveNotification(string(ev.Kind), err)
	if err != nil {
		n.log.Warn().Err(err).Int64("user", userID).Str("event", string(ev.Kind)).Msg("dispatch: notification failed")
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	return nil
}

// Broadcast отправляет событие нескольким пользователям и возвращает число доставленных.
func (n *Notifier) Broadcast(ctx context.Context, userIDs []int64, ev domain.Event) int {
	delivered := 0
	for _, id := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if err := n.Notify(ctx, id, ev); err == nil {
			delivered++
		}
	}
	return delivered
}

// Render формирует текст уведомления для события.
func Render(ev domain.Event) string {
	switch ev.Kind {
	case domain.EventImportantMessage:
		if ev.Message != nil {
			return FormatImportantMessage(*ev.Message, ev.Score, ev.Reason)
		}
	case domain.EventPostQueued:
		if ev.Post != nil {
			return FormatAdminNewPost(*ev.Post)
		}
	case domain.EventPostApproved, domain.EventPostRejected, domain.EventPostPublished:
		if ev.Post != nil {
			return FormatDecision(*ev.Post)
		}
	case domain.EventPostStuck:
		if ev.Post != nil {
			return FormatStuck(*ev.Post)
		}
	}
	return string(ev.Kind)
}
