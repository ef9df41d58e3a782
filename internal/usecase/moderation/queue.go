package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// Queue хранит посты, ожидающие решения администратора.
// Любое чтение-изменение-запись поста выполняется под блокировкой его идентификатора.
type Queue struct {
	repo   domain.PostRepo
	locker domain.Locker
	now    func() time.Time
}

// NewQueue создаёт очередь модерации.
func NewQueue(repo domain.PostRepo, locker domain.Locker) *Queue {
	return &Queue{repo: repo, locker: locker, now: time.Now}
}

// Enqueue переводит пост в PendingReview. Если пост уже в очереди, возвращает его без изменений
// и false: повторная постановка не создаёт дубликат.
func (q *Queue) Enqueue(ctx context.Context, post domain.Post) (domain.Post, bool, error) {
	queued := false
	out, err := q.withPost(ctx, post.ID, func(p *domain.Post, exists bool) (bool, error) {
		if !exists {
			*p = post.Clone()
		}
		if p.State == domain.PostStatePendingReview {
			return false, nil
		}
		if err := p.Transition(domain.PostStatePendingReview, q.now()); err != nil {
			return false, err
		}
		queued = true
		return true, nil
	})
	if err != nil {
		return domain.Post{}, false, err
	}
	return out, queued, nil
}

// ListPending возвращает посты в очереди: старые первыми, при равном времени по идентификатору.
func (q *Queue) ListPending(ctx context.Context) ([]domain.Post, error) {
	posts, err := q.repo.LoadPendingPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending posts: %w", err)
	}
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if p.State == domain.PostStatePendingReview {
			out = append(out, p.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	metrics.PendingPosts.Set(float64(len(out)))
	return out, nil
}

// Decide применяет решение администратора. Второе решение по посту возвращает ErrAlreadyDecided.
func (q *Queue) Decide(ctx context.Context, d domain.Decision) (domain.Post, error) {
	return q.withPost(ctx, d.PostID, func(p *domain.Post, exists bool) (bool, error) {
		if !exists {
			return false, fmt.Errorf("%w: %s", domain.ErrPostNotFound, d.PostID)
		}
		if err := p.ApplyDecision(d, q.now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// withPost блокирует пост, загружает его и сохраняет, если fn вернула true.
// Для несуществующего поста fn получает нулевое значение и exists == false.
// Результат сохраняется и после отмены ctx: изменение уже произошло.
func (q *Queue) withPost(ctx context.Context, id string, fn func(p *domain.Post, exists bool) (bool, error)) (domain.Post, error) {
	unlock, err := q.locker.Lock(ctx, "post:"+id)
	if err != nil {
		return domain.Post{}, fmt.Errorf("lock post %s: %w", id, err)
	}
	defer unlock()

	post, err := q.repo.GetPost(ctx, id)
	exists := true
	switch {
	case errors.Is(err, domain.ErrPostNotFound):
		exists = false
		post = domain.Post{}
	case err != nil:
		return domain.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}

	changed, err := fn(&post, exists)
	if err != nil {
		return post, err
	}
	if changed {
		if err := q.repo.SavePost(context.WithoutCancel(ctx), post); err != nil {
			return domain.Post{}, fmt.Errorf("save post %s: %w", id, err)
		}
	}
	return post.Clone(), nil
}
