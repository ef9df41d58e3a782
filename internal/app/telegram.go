package app

import (
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/adapters/telegram"
	"tg-importance-bot/internal/infra/config"
	applog "tg-importance-bot/internal/infra/log"
	"tg-importance-bot/internal/infra/metrics"
)

// NewBot создаёт клиент Bot API и отправитель сообщений с ограничением частоты.
func NewBot(cfg config.AppConfig, in *Infra, logger zerolog.Logger) (*tgbotapi.BotAPI, *telegram.Sender, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil, errors.New("TG_BOT_TOKEN is required")
	}
	start := time.Now()
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	metrics.ObserveNetworkRequest("telegram_bot", "get_me", "bot", start, err)
	if err != nil {
		return nil, nil, fmt.Errorf("create bot: %w", err)
	}
	sender := telegram.NewSender(api, cfg.Telegram.SendRPS, cfg.Telegram.SendBurst, in.Cache, applog.Component(logger, "telegram"))
	return api, sender, nil
}
