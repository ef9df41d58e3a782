package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
)

// ErrUnauthorized — сохранённая сессия не авторизована; её нужно импортировать заново.
var ErrUnauthorized = errors.New("mtproto session is not authorized")

// MessageHandler получает каждое новое текстовое сообщение.
type MessageHandler func(ctx context.Context, msg domain.Message) error

// Listener получает новые сообщения каналов и чатов через пользовательский клиент Telegram.
type Listener struct {
	apiID   int
	apiHash string
	store   *SessionStore
	handle  MessageHandler
	log     zerolog.Logger
}

// NewListener создаёт слушателя. Сессия должна быть заранее авторизована и импортирована.
func NewListener(apiID int, apiHash string, store *SessionStore, handle MessageHandler, log zerolog.Logger) *Listener {
	return &Listener{apiID: apiID, apiHash: apiHash, store: store, handle: handle, log: log}
}

// Run подключается к Telegram и обрабатывает обновления до отмены контекста.
func (l *Listener) Run(ctx context.Context) error {
	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		return l.dispatch(ctx, e, update.Message)
	})
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		return l.dispatch(ctx, e, update.Message)
	})

	client := telegram.NewClient(l.apiID, l.apiHash, telegram.Options{
		SessionStorage: l.store,
		UpdateHandler:  dispatcher,
	})
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		l.log.Info().Msg("mtproto: listener started")
		<-ctx.Done()
		return ctx.Err()
	})
}

func (l *Listener) dispatch(ctx context.Context, e tg.Entities, raw tg.MessageClass) error {
	msg, ok := ConvertMessage(e, raw)
	if !ok {
		return nil
	}
	if err := l.handle(ctx, msg); err != nil {
		// Ошибка обработчика не должна останавливать поток обновлений.
		l.log.Error().Err(err).Int64("source", msg.SourceID).Int64("message", msg.MessageID).Msg("mtproto: handle message failed")
	}
	return nil
}

// ConvertMessage преобразует сообщение MTProto во входящее сообщение.
// Служебные, исходящие и пустые сообщения пропускаются.
func ConvertMessage(e tg.Entities, raw tg.MessageClass) (domain.Message, bool) {
	m, ok := raw.(*tg.Message)
	if !ok || m.Out || strings.TrimSpace(m.Message) == "" {
		return domain.Message{}, false
	}
	msg := domain.Message{
		MessageID: int64(m.ID),
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0).UTC(),
	}
	if _, fwd := m.GetFwdFrom(); fwd {
		msg.Forwarded = true
	}
	if from, ok := m.GetFromID(); ok {
		if user, ok := from.(*tg.PeerUser); ok {
			msg.SenderID = user.UserID
		}
	}

	switch peer := m.PeerID.(type) {
	case *tg.PeerChannel:
		msg.SourceID = channelChatID(peer.ChannelID)
		if ch, ok := e.Channels[peer.ChannelID]; ok {
			msg.SourceTitle = ch.Title
			msg.SourceUsername = ch.Username
		}
		if msg.SourceUsername != "" {
			msg.Link = fmt.Sprintf("https://t.me/%s/%d", msg.SourceUsername, m.ID)
		} else {
			msg.Link = fmt.Sprintf("https://t.me/c/%d/%d", peer.ChannelID, m.ID)
		}
	case *tg.PeerChat:
		msg.SourceID = -peer.ChatID
		if chat, ok := e.Chats[peer.ChatID]; ok {
			msg.SourceTitle = chat.Title
		}
	case *tg.PeerUser:
		msg.SourceID = peer.UserID
		if user, ok := e.Users[peer.UserID]; ok {
			msg.SourceUsername = user.Username
			msg.SourceTitle = strings.TrimSpace(user.FirstName + " " + user.LastName)
		}
	default:
		return domain.Message{}, false
	}
	return msg, true
}

// channelChatID переводит идентификатор канала MTProto в формат Bot API (-100…).
func channelChatID(channelID int64) int64 {
	id, _ := strconv.ParseInt("-100"+strconv.FormatInt(channelID, 10), 10, 64)
	return id
}
