package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/adapters/bot"
	"tg-importance-bot/internal/app"
	"tg-importance-bot/internal/infra/config"
	httpinfra "tg-importance-bot/internal/infra/http"
	applog "tg-importance-bot/internal/infra/log"
	"tg-importance-bot/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось подключить инфраструктуру")
	}
	defer infra.Close()

	botAPI, sender, err := app.NewBot(cfg, infra, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	services, err := app.NewServices(cfg, infra, sender, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось собрать сервисы")
	}
	if err := services.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось загрузить состояние")
	}
	go services.Reload(ctx, cfg.Pipeline.ReloadInterval)

	h := bot.NewHandler(botAPI, applog.Component(logger, "bot"), services.Access, services.Subscriptions,
		services.Criteria, services.Moderation, services.Pipeline)

	if cfg.Telegram.WebhookURL == "" {
		logger.Info().Msg("bot-gateway: TG_WEBHOOK_URL не задан, получаем обновления long polling")
		poll(ctx, botAPI, h, logger)
		logger.Info().Msg("bot-gateway: остановлен")
		return
	}

	wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: некорректный адрес вебхука")
	}
	if _, err := botAPI.Request(wh); err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось зарегистрировать вебхук")
	}

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	srv.Router.Post(cfg.Telegram.WebhookPath, func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bot-gateway: ошибка остановки HTTP сервера")
	}
}

func poll(ctx context.Context, api *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("bot-gateway: не удалось удалить вебхук")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			h.HandleUpdate(ctx, update)
		}
	}
}
