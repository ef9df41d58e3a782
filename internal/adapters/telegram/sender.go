package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// BotAPI — часть клиента Bot API, нужная отправителю.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

const publishedMarkerTTL = 7 * 24 * time.Hour

// Sender публикует посты в канал и отправляет личные сообщения через Bot API.
// Исходящие запросы ограничиваются общим лимитером, чтобы не упираться во флуд-контроль Telegram.
type Sender struct {
	api     BotAPI
	limiter *rate.Limiter
	cache   domain.Cache
	log     zerolog.Logger
}

var _ domain.Sender = (*Sender)(nil)

// NewSender создаёт отправителя. cache может быть nil, тогда повторная публикация не отслеживается.
func NewSender(api BotAPI, rps float64, burst int, cache domain.Cache, logger zerolog.Logger) *Sender {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Sender{api: api, limiter: rate.NewLimiter(limit, burst), cache: cache, log: logger}
}

// Send публикует текст в канал и возвращает идентификатор первого сообщения.
// Если в контексте передан идентификатор поста, уже опубликованный пост повторно не отправляется,
// а после частичной отправки длинного поста повтор досылает только оставшиеся части.
func (s *Sender) Send(ctx context.Context, channelID int64, text string) (int, error) {
	postID, tracked := domain.PostIDFromContext(ctx)
	if tracked && s.cache != nil {
		if raw, err := s.cache.Get(ctx, publishedKey(postID)); err == nil {
			if id, convErr := strconv.Atoi(string(raw)); convErr == nil {
				s.log.Warn().Str("post", postID).Int("message_id", id).Msg("telegram: post already sent, skipping")
				return id, nil
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.log.Debug().Err(err).Str("post", postID).Msg("telegram: published marker lookup failed")
		}
	}

	var marker string
	if tracked && s.cache != nil {
		marker = publishedKey(postID)
	}
	messageID, err := s.send(ctx, channelID, text, nil, "publish", marker)
	if err != nil {
		return 0, err
	}
	if tracked && s.cache != nil {
		if err := s.cache.Set(ctx, publishedKey(postID), []byte(strconv.Itoa(messageID)), publishedMarkerTTL); err != nil {
			s.log.Warn().Err(err).Str("post", postID).Msg("telegram: store published marker")
		}
	}
	return messageID, nil
}

// Notify отправляет пользователю личное сообщение.
func (s *Sender) Notify(ctx context.Context, userID int64, text string) error {
	_, err := s.send(ctx, userID, text, nil, "notify", "")
	return err
}

// NotifyDecision отправляет администратору карточку поста с кнопками решения.
func (s *Sender) NotifyDecision(ctx context.Context, userID int64, text, postID string) error {
	_, err := s.send(ctx, userID, text, DecisionKeyboard(postID), "notify_decision", "")
	return err
}

// DecisionKeyboard возвращает кнопки «одобрить» и «отклонить» для поста.
func DecisionKeyboard(postID string) *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", CallbackApprove+postID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", CallbackReject+postID),
		),
	)
	return &keyboard
}

const (
	// CallbackApprove — префикс данных кнопки одобрения.
	CallbackApprove = "approve:"
	// CallbackReject — префикс данных кнопки отклонения.
	CallbackReject = "reject:"
)

// send отправляет текст частями. Если marker задан, каждая доставленная часть отмечается в кэше
// ключом <marker>:<номер>, и повторный вызов отправляет только недоставленные части.
func (s *Sender) send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup, operation, marker string) (int, error) {
	parts := SplitMessage(text, MessageLimit)
	if len(parts) == 0 {
		return 0, errors.New("telegram: empty message")
	}
	first := 0
	for i, part := range parts {
		if id, ok := s.deliveredPart(ctx, marker, i); ok {
			if i == 0 {
				first = id
			}
			s.log.Debug().Str("marker", marker).Int("part", i).Msg("telegram: part already delivered, skipping")
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return first, fmt.Errorf("telegram: rate limit wait: %w", err)
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		sent, err := s.api.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", operation, strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return first, fmt.Errorf("telegram: send part %d/%d to %d: %w", i+1, len(parts), chatID, err)
		}
		if i == 0 {
			first = sent.MessageID
		}
		s.markPart(ctx, marker, i, sent.MessageID)
	}
	return first, nil
}

func (s *Sender) deliveredPart(ctx context.Context, marker string, part int) (int, bool) {
	if marker == "" {
		return 0, false
	}
	raw, err := s.cache.Get(ctx, partKey(marker, part))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Debug().Err(err).Str("marker", marker).Int("part", part).Msg("telegram: part marker lookup failed")
		}
		return 0, false
	}
	id, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Sender) markPart(ctx context.Context, marker string, part, messageID int) {
	if marker == "" {
		return
	}
	if err := s.cache.Set(ctx, partKey(marker, part), []byte(strconv.Itoa(messageID)), publishedMarkerTTL); err != nil {
		s.log.Warn().Err(err).Str("marker", marker).Int("part", part).Msg("telegram: store part marker")
	}
}

func partKey(marker string, part int) string {
	return marker + ":" + strconv.Itoa(part)
}

func publishedKey(postID string) string {
	return "published:" + postID
}
