package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tg-importance-bot/internal/adapters/httpapi"
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
		logger.Fatal().Err(err).Msg("api: не удалось подключить инфраструктуру")
	}
	defer infra.Close()

	_, sender, err := app.NewBot(cfg, infra, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать бота")
	}

	services, err := app.NewServices(cfg, infra, sender, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать сервисы")
	}
	if err := services.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось загрузить состояние")
	}
	go services.Reload(ctx, cfg.Pipeline.ReloadInterval)

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	api := httpapi.New(services.Moderation, services.Criteria, services.Access, applog.Component(logger, "api"))
	api.Mount(srv.Router, httpinfra.WebAppAuthMiddleware(cfg.Telegram.Token, cfg.Telegram.InitDataMaxAge))

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки HTTP сервера")
	}
}
