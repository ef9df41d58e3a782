package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tg-importance-bot/internal/app"
	"tg-importance-bot/internal/infra/config"
	applog "tg-importance-bot/internal/infra/log"
	"tg-importance-bot/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подключить инфраструктуру")
	}
	defer infra.Close()

	_, sender, err := app.NewBot(cfg, infra, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	services, err := app.NewServices(cfg, infra, sender, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать сервисы")
	}
	if err := services.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось загрузить состояние")
	}
	go services.Reload(ctx, cfg.Pipeline.ReloadInterval)

	interval := cfg.Pipeline.RetryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", interval).Msg("scheduler: запущен")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
			published, err := services.Moderation.RetryApproved(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("scheduler: ошибка повторной публикации")
				continue
			}
			if published > 0 {
				logger.Info().Int("published", published).Msg("scheduler: опубликованы одобренные посты")
			}
			if _, err := services.Moderation.ListPending(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("scheduler: не удалось обновить размер очереди модерации")
			}
		}
	}
}
