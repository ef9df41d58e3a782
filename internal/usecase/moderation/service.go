package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// DefaultMaxPublishAttempts — число неудачных попыток, после которого пост считается застрявшим.
const DefaultMaxPublishAttempts = 5

// DefaultSubmittedGrace — время, после которого пост автопубликации в Submitted подхватывает повтор.
const DefaultSubmittedGrace = 10 * time.Minute

// Publisher публикует пост в канал.
type Publisher interface {
	Publish(ctx context.Context, channelID int64, post domain.Post) (int, error)
}

// Notifier доставляет уведомления пользователям.
type Notifier interface {
	Notify(ctx context.Context, userID int64, ev domain.Event) error
	Broadcast(ctx context.Context, userIDs []int64, ev domain.Event) int
}

// Access проверяет права пользователей.
type Access interface {
	Can(userID int64, c domain.Capability) bool
	Identities(c domain.Capability) []int64
}

// CriteriaSource возвращает текущий снимок критериев.
type CriteriaSource interface {
	Snapshot() domain.Criteria
}

// Service управляет жизненным циклом постов: постановкой в очередь, решениями,
// публикацией и повторами.
type Service struct {
	queue       *Queue
	repo        domain.PostRepo
	publisher   Publisher
	notifier    Notifier
	access      Access
	criteria    CriteriaSource
	metricsRepo domain.BusinessMetricRepo
	maxAttempts int

	// submittedGrace — сколько пост автопубликации может оставаться в Submitted до подхвата повтором.
	submittedGrace time.Duration

	log zerolog.Logger
	now func() time.Time
}

// NewService создаёт сервис модерации. metricsRepo может быть nil.
func NewService(queue *Queue, publisher Publisher, notifier Notifier, access Access, criteria CriteriaSource, metricsRepo domain.BusinessMetricRepo, maxAttempts int, logger zerolog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPublishAttempts
	}
	return &Service{
		queue:          queue,
		repo:           queue.repo,
		publisher:      publisher,
		notifier:       notifier,
		access:         access,
		criteria:       criteria,
		metricsRepo:    metricsRepo,
		maxAttempts:    maxAttempts,
		submittedGrace: DefaultSubmittedGrace,
		log:            logger,
		now:            time.Now,
	}
}

// Submit принимает новый пост с глобальным решением фильтра.
func (s *Service) Submit(ctx context.Context, post domain.Post, action domain.Action) (domain.Post, error) {
	switch action {
	case domain.ActionQueueForModeration:
		queued, isNew, err := s.queue.Enqueue(ctx, post)
		if err != nil {
			return domain.Post{}, err
		}
		if isNew {
			s.log.Info().Str("post", queued.ID).Msg("moderation: post queued for review")
			s.record(ctx, domain.BusinessMetricEventPostQueued, queued, nil)
			s.notifier.Broadcast(ctx, s.access.Identities(domain.CapModerate), domain.Event{Kind: domain.EventPostQueued, Post: &queued})
		}
		return queued, nil
	case domain.ActionAutoPublish:
		if _, err := s.queue.withPost(ctx, post.ID, func(p *domain.Post, exists bool) (bool, error) {
			if exists {
				return false, nil
			}
			*p = post.Clone()
			return true, nil
		}); err != nil {
			return domain.Post{}, err
		}
		return s.publish(ctx, post.ID)
	default:
		return domain.Post{}, fmt.Errorf("%w: action %s does not create a post", domain.ErrInvalidOption, action)
	}
}

// Decide применяет решение администратора и при одобрении публикует пост.
// Если публикация не удалась, пост остаётся Approved и возвращается вместе с ErrPublicationFailed.
func (s *Service) Decide(ctx context.Context, d domain.Decision) (domain.Post, error) {
	if !s.access.Can(d.AdminID, domain.CapModerate) {
		metrics.ModerationDecisions.WithLabelValues(string(d.Verdict), "forbidden").Inc()
		return domain.Post{}, fmt.Errorf("%w: user %d cannot moderate", domain.ErrForbidden, d.AdminID)
	}
	post, err := s.queue.Decide(ctx, d)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, domain.ErrAlreadyDecided):
			result = "duplicate"
		case errors.Is(err, domain.ErrLifecycleViolation):
			result = "violation"
			s.log.Warn().Err(err).Str("post", d.PostID).Int64("admin", d.AdminID).Msg("moderation: decision rejected by lifecycle")
		}
		metrics.ModerationDecisions.WithLabelValues(string(d.Verdict), result).Inc()
		return post, err
	}
	metrics.ModerationDecisions.WithLabelValues(string(d.Verdict), "ok").Inc()
	s.log.Info().Str("post", post.ID).Int64("admin", d.AdminID).Str("verdict", string(d.Verdict)).Msg("moderation: decision applied")
	s.record(ctx, domain.BusinessMetricEventPostDecided, post, map[string]any{"verdict": string(d.Verdict), "admin_id": d.AdminID})

	if post.State == domain.PostStateRejected {
		s.notifySubmitter(ctx, post, domain.EventPostRejected)
		return post, nil
	}
	return s.publish(ctx, post.ID)
}

// RetryApproved повторяет публикацию одобренных, но не опубликованных постов, а также постов
// автопубликации, оставшихся в Submitted дольше submittedGrace (первая попытка не была записана).
// Застрявшие посты пропускаются до ручного повтора. Возвращает число опубликованных.
func (s *Service) RetryApproved(ctx context.Context) (int, error) {
	notStuck := false
	posts, err := s.repo.ListPosts(ctx, domain.PostFilter{
		States: []domain.PostState{domain.PostStateApproved, domain.PostStateSubmitted},
		Stuck:  &notStuck,
	})
	if err != nil {
		return 0, fmt.Errorf("list approved posts: %w", err)
	}
	published := 0
	now := s.now()
	for _, p := range posts {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		if p.State == domain.PostStateSubmitted && now.Sub(p.UpdatedAt) < s.submittedGrace {
			continue
		}
		if _, err := s.publish(ctx, p.ID); err != nil {
			s.log.Warn().Err(err).Str("post", p.ID).Msg("moderation: retry publish failed")
			continue
		}
		published++
	}
	return published, nil
}

// RetryPost сбрасывает счётчик попыток одобренного поста и публикует его.
func (s *Service) RetryPost(ctx context.Context, adminID int64, id string) (domain.Post, error) {
	if !s.access.Can(adminID, domain.CapModerate) {
		return domain.Post{}, fmt.Errorf("%w: user %d cannot moderate", domain.ErrForbidden, adminID)
	}
	if current, err := s.queue.withPost(ctx, id, func(p *domain.Post, exists bool) (bool, error) {
		if !exists {
			return false, fmt.Errorf("%w: %s", domain.ErrPostNotFound, id)
		}
		if p.State != domain.PostStateApproved {
			return false, fmt.Errorf("%w: post %s is %s, only approved posts can be retried", domain.ErrLifecycleViolation, id, p.State)
		}
		p.Publication.Stuck = false
		p.Publication.Attempts = 0
		p.Publication.LastError = ""
		return true, nil
	}); err != nil {
		return current, err
	}
	s.log.Info().Str("post", id).Int64("admin", adminID).Msg("moderation: manual publish retry")
	return s.publish(ctx, id)
}

// Purge удаляет пост из хранилища.
func (s *Service) Purge(ctx context.Context, adminID int64, id string) error {
	if !s.access.Can(adminID, domain.CapModerate) {
		return fmt.Errorf("%w: user %d cannot moderate", domain.ErrForbidden, adminID)
	}
	_, err := s.queue.withPost(ctx, id, func(p *domain.Post, exists bool) (bool, error) {
		if !exists {
			return false, fmt.Errorf("%w: %s", domain.ErrPostNotFound, id)
		}
		return false, s.repo.DeletePost(ctx, id)
	})
	if err == nil {
		s.log.Info().Str("post", id).Int64("admin", adminID).Msg("moderation: post purged")
	}
	return err
}

// ListPending возвращает очередь модерации.
func (s *Service) ListPending(ctx context.Context) ([]domain.Post, error) {
	return s.queue.ListPending(ctx)
}

// ListStuck возвращает посты, исчерпавшие попытки публикации.
func (s *Service) ListStuck(ctx context.Context) ([]domain.Post, error) {
	stuck := true
	return s.repo.ListPosts(ctx, domain.PostFilter{States: []domain.PostState{domain.PostStateApproved}, Stuck: &stuck})
}

// ListPosts возвращает посты по фильтру.
func (s *Service) ListPosts(ctx context.Context, f domain.PostFilter) ([]domain.Post, error) {
	return s.repo.ListPosts(ctx, f)
}

// Get возвращает пост по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Post, error) {
	return s.repo.GetPost(ctx, id)
}

// publish отправляет пост в канал под блокировкой поста.
// Попытка фиксируется до отправки; при неудаче пост остаётся (или становится) Approved.
func (s *Service) publish(ctx context.Context, id string) (domain.Post, error) {
	var (
		pubErr    error
		published bool
		stuckNow  bool
	)
	post, err := s.queue.withPost(ctx, id, func(p *domain.Post, exists bool) (bool, error) {
		if !exists {
			return false, fmt.Errorf("%w: %s", domain.ErrPostNotFound, id)
		}
		switch p.State {
		case domain.PostStatePublished:
			return false, nil
		case domain.PostStateSubmitted, domain.PostStateApproved:
		default:
			return false, fmt.Errorf("%w: post %s is %s and cannot be published", domain.ErrLifecycleViolation, id, p.State)
		}
		if p.Publication.Stuck {
			return false, nil
		}
		if p.Publication.InFlight {
			s.log.Warn().Str("post", id).Int("attempts", p.Publication.Attempts).
				Msg("moderation: previous publish attempt did not finish, possible duplicate")
		}

		now := s.now()
		p.Publication.InFlight = true
		p.Publication.Attempts++
		p.Publication.LastAttemptAt = now
		if err := s.repo.SavePost(ctx, *p); err != nil {
			return false, fmt.Errorf("record publish attempt: %w", err)
		}

		messageID, err := s.publisher.Publish(ctx, s.criteria.Snapshot().PublishChannelID, *p)
		p.Publication.InFlight = false
		if err == nil {
			if terr := p.Transition(domain.PostStatePublished, s.now()); terr != nil {
				return false, terr
			}
			p.Publication.MessageID = messageID
			p.Publication.PublishedAt = p.UpdatedAt
			p.Publication.LastError = ""
			published = true
			return true, nil
		}

		pubErr = err
		p.Publication.LastError = err.Error()
		if p.State == domain.PostStateSubmitted {
			if terr := p.Transition(domain.PostStateApproved, now); terr != nil {
				return false, terr
			}
			p.Decision = &domain.DecisionMeta{Verdict: domain.VerdictApprove, Auto: true, DecidedAt: now}
		}
		if p.Publication.Attempts >= s.maxAttempts && !p.Publication.Stuck {
			p.Publication.Stuck = true
			stuckNow = true
		}
		return true, nil
	})
	if err != nil {
		return post, err
	}

	switch {
	case published:
		s.record(ctx, domain.BusinessMetricEventPostPublished, post, map[string]any{"attempts": post.Publication.Attempts})
		s.notifySubmitter(ctx, post, domain.EventPostPublished)
	case pubErr != nil:
		s.log.Warn().Err(pubErr).Str("post", id).Int("attempts", post.Publication.Attempts).Msg("moderation: publish failed, post stays approved")
		if stuckNow {
			metrics.StuckPosts.Inc()
			s.log.Error().Str("post", id).Int("attempts", post.Publication.Attempts).Msg("moderation: post is stuck")
			s.record(ctx, domain.BusinessMetricEventPostStuck, post, map[string]any{"last_error": post.Publication.LastError})
			s.notifier.Broadcast(ctx, s.access.Identities(domain.CapModerate), domain.Event{Kind: domain.EventPostStuck, Post: &post})
		}
		return post, pubErr
	}
	return post, nil
}

func (s *Service) notifySubmitter(ctx context.Context, post domain.Post, kind domain.EventKind) {
	if !post.HasSubmitter() {
		return
	}
	_ = s.notifier.Notify(ctx, post.SubmitterID, domain.Event{Kind: kind, Post: &post})
}

func (s *Service) record(ctx context.Context, event string, post domain.Post, meta map[string]any) {
	if s.metricsRepo == nil {
		return
	}
	m := domain.BusinessMetric{Event: event, PostID: post.ID, Metadata: meta, OccurredAt: s.now()}
	if post.HasSubmitter() {
		uid := post.SubmitterID
		m.UserID = &uid
	}
	if err := s.metricsRepo.RecordBusinessMetric(ctx, m); err != nil {
		s.log.Warn().Err(err).Str("event", event).Str("post", post.ID).Msg("moderation: record business metric failed")
	}
}
