package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/adapters/oracle"
	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/config"
	applog "tg-importance-bot/internal/infra/log"
	"tg-importance-bot/internal/infra/openai"
	"tg-importance-bot/internal/usecase/access"
	"tg-importance-bot/internal/usecase/criteria"
	"tg-importance-bot/internal/usecase/dispatch"
	"tg-importance-bot/internal/usecase/moderation"
	"tg-importance-bot/internal/usecase/pipeline"
	"tg-importance-bot/internal/usecase/scoring"
	"tg-importance-bot/internal/usecase/subscriptions"
)

// Services — сервисы предметной области, собранные поверх инфраструктуры.
type Services struct {
	Criteria      *criteria.Store
	Access        *access.Service
	Subscriptions *subscriptions.Service
	Moderation    *moderation.Service
	Pipeline      *pipeline.Pipeline
	Notifier      *dispatch.Notifier

	seed domain.Criteria
	log  zerolog.Logger
}

// NewServices собирает сервисы. sender публикует посты и доставляет уведомления.
func NewServices(cfg config.AppConfig, in *Infra, sender domain.Sender, logger zerolog.Logger) (*Services, error) {
	seed := domain.DefaultCriteria()
	if cfg.CriteriaFile != "" {
		c, err := config.LoadCriteriaFile(cfg.CriteriaFile)
		if err != nil {
			return nil, fmt.Errorf("criteria file: %w", err)
		}
		seed = c
	}

	var scoringOracle domain.ScoringOracle
	if cfg.Oracle.APIKey != "" {
		client := openai.NewClient(cfg.Oracle.APIKey, cfg.Oracle.BaseURL, cfg.Oracle.Timeout)
		scoringOracle = oracle.NewLLM(client, cfg.Oracle.Model, cfg.Oracle.Timeout, cfg.Oracle.Retries, applog.Component(logger, "oracle"))
	} else {
		logger.Warn().Msg("app: ORACLE_API_KEY не задан, оценка только эвристикой")
	}
	scorer := scoring.NewScorer(scoringOracle, in.Cache, scoring.Options{
		OracleBudget:        cfg.Oracle.Timeout * time.Duration(cfg.Oracle.Retries+1),
		CacheTTL:            cfg.Oracle.CacheTTL,
		HeuristicFullLength: cfg.Pipeline.HeuristicFullLength,
	}, applog.Component(logger, "scoring"))

	crit := criteria.NewStore(in.Repo, applog.Component(logger, "criteria"))
	acc := access.NewService(in.Repo, cfg.AdminIDs)
	subs := subscriptions.NewService(in.Repo, cfg.SubscriptionLimit)

	publisher := dispatch.NewPublisher(sender, dispatch.PublisherOptions{
		Timeout:  cfg.Pipeline.PublishTimeout,
		Attempts: cfg.Pipeline.PublishRetries,
		Max:      cfg.Pipeline.PublishBackoffMax,
	}, applog.Component(logger, "publisher"))
	notifier := dispatch.NewNotifier(sender, cfg.Pipeline.NotifyTimeout, applog.Component(logger, "notifier"))

	moder := moderation.NewService(
		moderation.NewQueue(in.Repo, in.Locker),
		publisher, notifier, acc, crit, in.Repo,
		cfg.Pipeline.MaxPublishAttempts,
		applog.Component(logger, "moderation"),
	)
	pipe := pipeline.New(crit, subs, scorer, moder, notifier, acc, in.Repo, applog.Component(logger, "pipeline"))

	return &Services{
		Criteria:      crit,
		Access:        acc,
		Subscriptions: subs,
		Moderation:    moder,
		Pipeline:      pipe,
		Notifier:      notifier,
		seed:          seed,
		log:           logger,
	}, nil
}

// Load читает критерии, роли и подписки из хранилища.
// Критерии засеваются из CRITERIA_FILE, если ещё не сохранялись.
func (s *Services) Load(ctx context.Context) error {
	if err := s.Criteria.Load(ctx, s.seed); err != nil {
		return err
	}
	if err := s.Access.Load(ctx); err != nil {
		return err
	}
	return s.Subscriptions.Load(ctx)
}

// Reload периодически перечитывает состояние, изменённое другими процессами, до отмены контекста.
func (s *Services) Reload(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Load(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("app: не удалось перечитать состояние")
			}
		}
	}
}
