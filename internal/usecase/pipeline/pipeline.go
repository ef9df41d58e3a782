package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
	"tg-importance-bot/internal/usecase/filter"
)

// postNamespace задаёт пространство имён для идентификаторов постов из входящих сообщений:
// повторная доставка того же сообщения даёт тот же пост.
var postNamespace = uuid.MustParse("8f2d8b9e-4b7a-4f5e-9c1d-3a6e0b7c5d21")

// Scorer оценивает сообщения.
type Scorer interface {
	Score(ctx context.Context, msg domain.Message, c domain.Criteria) (domain.ImportanceScore, error)
	Personalize(msg domain.Message, score domain.ImportanceScore, sub domain.SubscriberCriteria, c domain.Criteria) float64
}

// Moderation принимает посты в жизненный цикл модерации.
type Moderation interface {
	Submit(ctx context.Context, post domain.Post, action domain.Action) (domain.Post, error)
}

// Notifier доставляет уведомления подписчикам.
type Notifier interface {
	Notify(ctx context.Context, userID int64, ev domain.Event) error
}

// Subscribers находит подписчиков источника сообщения.
type Subscribers interface {
	ForMessage(msg domain.Message) []domain.SubscriberCriteria
}

// CriteriaSource возвращает текущий снимок критериев.
type CriteriaSource interface {
	Snapshot() domain.Criteria
}

// Access проверяет права пользователя.
type Access interface {
	Can(userID int64, c domain.Capability) bool
}

// Result описывает итог обработки сообщения.
type Result struct {
	Score       domain.ImportanceScore
	Disposition domain.Disposition
	Post        *domain.Post
	Notified    int
}

// Pipeline связывает оценку, фильтр, уведомления и модерацию.
type Pipeline struct {
	criteria    CriteriaSource
	subscribers Subscribers
	scorer      Scorer
	moderation  Moderation
	notifier    Notifier
	access      Access
	metricsRepo domain.BusinessMetricRepo
	log         zerolog.Logger
	now         func() time.Time
}

// New создаёт конвейер. metricsRepo может быть nil.
func New(criteria CriteriaSource, subscribers Subscribers, scorer Scorer, moderation Moderation, notifier Notifier, access Access, metricsRepo domain.BusinessMetricRepo, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		criteria:    criteria,
		subscribers: subscribers,
		scorer:      scorer,
		moderation:  moderation,
		notifier:    notifier,
		access:      access,
		metricsRepo: metricsRepo,
		log:         logger,
		now:         time.Now,
	}
}

// Process оценивает входящее сообщение, уведомляет подписчиков и при достаточной важности
// создаёт пост. Отменённая обработка не создаёт пост. Неудачная автопубликация не считается
// ошибкой обработки: пост остаётся одобренным и будет опубликован повторно.
func (p *Pipeline) Process(ctx context.Context, msg domain.Message) (Result, error) {
	start := time.Now()
	defer func() { metrics.PipelineSeconds.Observe(time.Since(start).Seconds()) }()

	c := p.criteria.Snapshot()
	subs := p.subscribers.ForMessage(msg)

	score, err := p.scorer.Score(ctx, msg, c)
	if err != nil {
		return Result{}, fmt.Errorf("score message: %w", err)
	}

	personal := make(map[int64]float64, len(subs))
	candidates := make([]filter.Candidate, 0, len(subs))
	for _, sub := range subs {
		value := p.scorer.Personalize(msg, score, sub, c)
		personal[sub.UserID] = value
		candidates = append(candidates, filter.Candidate{Criteria: sub, Score: value})
	}
	disp := filter.Decide(score, c, candidates)
	metrics.Dispositions.WithLabelValues(string(disp.Action)).Inc()
	p.record(ctx, msg, score, disp)

	res := Result{Score: score, Disposition: disp}
	for _, userID := range disp.Notify {
		if ctx.Err() != nil {
			break
		}
		msgCopy := msg
		err := p.notifier.Notify(ctx, userID, domain.Event{
			Kind:    domain.EventImportantMessage,
			Message: &msgCopy,
			Score:   personal[userID],
			Reason:  score.Reason,
		})
		if err == nil {
			res.Notified++
			metrics.SubscriberAlerts.Inc()
		}
	}

	p.log.Debug().Int64("source", msg.SourceID).Int64("message", msg.MessageID).
		Float64("score", score.Final).Str("origin", string(score.Origin)).Str("disposition", disp.String()).
		Msg("pipeline: message processed")

	if !disp.Promotes() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	msgCopy := msg
	scoreCopy := score
	post := domain.NewPost(messagePostID(msg), msg.Text, domain.SystemSubmitter, &msgCopy, &scoreCopy, p.now())
	post, err = p.moderation.Submit(ctx, post, disp.Action)
	if err := p.submitted(post, err); err != nil {
		return res, err
	}
	res.Post = &post
	return res, nil
}

// SubmitManual принимает пост от пользователя с правом submit. Пост оценивается и
// публикуется автоматически, если это разрешено критериями и оценка достигает порога,
// иначе ставится в очередь модерации.
func (p *Pipeline) SubmitManual(ctx context.Context, userID int64, text string) (Result, error) {
	if !p.access.Can(userID, domain.CapSubmit) {
		return Result{}, fmt.Errorf("%w: user %d cannot submit posts", domain.ErrForbidden, userID)
	}
	c := p.criteria.Snapshot()
	text = strings.TrimSpace(text)
	if runes := utf8.RuneCountInString(text); !c.LengthAllowed(runes) {
		return Result{}, fmt.Errorf("%w: length %d is outside [%d, %d]", domain.ErrInvalidMessage, runes, c.MinMessageLength, c.MaxMessageLength)
	}

	now := p.now()
	msg := domain.Message{SenderID: userID, Text: text, Date: now}
	score, err := p.scorer.Score(ctx, msg, c)
	if err != nil {
		return Result{}, fmt.Errorf("score submission: %w", err)
	}
	action := filter.GlobalAction(score.Final, c)
	if action != domain.ActionAutoPublish {
		action = domain.ActionQueueForModeration
	}
	res := Result{Score: score, Disposition: domain.Disposition{Action: action}}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	post := domain.NewPost(uuid.NewString(), text, userID, nil, &score, now)
	post, err = p.moderation.Submit(ctx, post, action)
	if err := p.submitted(post, err); err != nil {
		return res, err
	}
	p.log.Info().Int64("user", userID).Str("post", post.ID).Str("state", string(post.State)).Msg("pipeline: manual submission accepted")
	res.Post = &post
	return res, nil
}

func (p *Pipeline) submitted(post domain.Post, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPublicationFailed) && post.ID != "":
		p.log.Warn().Err(err).Str("post", post.ID).Msg("pipeline: auto-publish failed, post left approved for retry")
		return nil
	default:
		return fmt.Errorf("submit post: %w", err)
	}
}

func (p *Pipeline) record(ctx context.Context, msg domain.Message, score domain.ImportanceScore, disp domain.Disposition) {
	if p.metricsRepo == nil {
		return
	}
	err := p.metricsRepo.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event: domain.BusinessMetricEventMessageScored,
		Metadata: map[string]any{
			"source":      msg.SourceID,
			"message":     msg.MessageID,
			"origin":      string(score.Origin),
			"final":       score.Final,
			"disposition": disp.String(),
		},
		OccurredAt: p.now(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("pipeline: record business metric failed")
	}
}

func messagePostID(msg domain.Message) string {
	if msg.MessageID == 0 {
		return uuid.NewString()
	}
	return uuid.NewSHA1(postNamespace, []byte(msg.DedupeKey())).String()
}
