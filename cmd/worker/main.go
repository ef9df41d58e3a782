package main

import (
	"context"
	"os/signal"
	"syscall"

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
		logger.Fatal().Err(err).Msg("worker: не удалось подключить инфраструктуру")
	}
	defer infra.Close()

	queue, err := infra.Queue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось открыть очередь")
	}

	_, sender, err := app.NewBot(cfg, infra, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
	}

	services, err := app.NewServices(cfg, infra, sender, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать сервисы")
	}
	if err := services.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось загрузить состояние")
	}
	go services.Reload(ctx, cfg.Pipeline.ReloadInterval)

	worker := app.NewJobWorker(queue, infra.Repo, services.Pipeline, cfg.Pipeline.MaxJobAttempts, applog.Component(logger, "worker"))

	logger.Info().Int("workers", cfg.Pipeline.Workers).Msg("worker: запуск обработки очереди")
	if err := worker.Run(ctx, cfg.Pipeline.Workers); err != nil {
		logger.Error().Err(err).Msg("worker: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("worker: остановлен")
}
