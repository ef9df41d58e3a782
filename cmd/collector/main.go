package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"tg-importance-bot/internal/adapters/kafka"
	"tg-importance-bot/internal/adapters/mtproto"
	"tg-importance-bot/internal/app"
	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/config"
	"tg-importance-bot/internal/infra/dedupe"
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
		logger.Fatal().Err(err).Msg("collector: не удалось подключить инфраструктуру")
	}
	defer infra.Close()

	queue, err := infra.Queue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось открыть очередь")
	}

	intake := app.NewIntake(queue, dedupe.New(cfg.Pipeline.DedupeSize, cfg.Pipeline.DedupeTTL), infra.Cache, cfg.Pipeline.DedupeTTL, applog.Component(logger, "intake"))

	g, ctx := errgroup.WithContext(ctx)
	sources := 0

	if cfg.Telegram.APIID != 0 && cfg.Telegram.APIHash != "" {
		store := mtproto.NewSessionStore(infra.Repo, cfg.MTProto.SessionName)
		listener := mtproto.NewListener(cfg.Telegram.APIID, cfg.Telegram.APIHash, store,
			intake.Handler(domain.ScoreJobOriginMTProto), applog.Component(logger, "mtproto"))
		g.Go(func() error { return listener.Run(ctx) })
		sources++
	} else {
		logger.Warn().Msg("collector: TG_API_ID/TG_API_HASH не заданы, MTProto-слушатель отключён")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		source := kafka.NewSource(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, applog.Component(logger, "kafka"))
		defer source.Close()
		g.Go(func() error { return source.Run(ctx, intake.Handler(domain.ScoreJobOriginKafka)) })
		sources++
	}
	if sources == 0 {
		logger.Fatal().Msg("collector: не настроен ни один источник сообщений")
	}

	logger.Info().Msg("collector: запущен")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("collector: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("collector: остановлен")
}
