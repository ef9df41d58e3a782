package memory

import (
	"context"
	"sort"
	"sync"

	"tg-importance-bot/internal/domain"
)

// Store реализует репозитории в памяти процесса. Используется в режиме STORAGE=memory
// и в тестах. Все значения копируются на входе и выходе.
type Store struct {
	mu          sync.RWMutex
	criteria    *domain.Criteria
	posts       map[string]domain.Post
	subscribers map[int64]domain.SubscriberCriteria
	roles       map[int64]domain.RoleSet
	sessions    map[string][]byte
	jobs        map[string]*jobStatus
	metrics     []domain.BusinessMetric
}

type jobStatus struct {
	attempts int
	done     bool
}

var (
	_ domain.CriteriaRepo       = (*Store)(nil)
	_ domain.PostRepo           = (*Store)(nil)
	_ domain.SubscriberRepo     = (*Store)(nil)
	_ domain.RoleRepo           = (*Store)(nil)
	_ domain.SessionRepo        = (*Store)(nil)
	_ domain.ScoreJobStatusRepo = (*Store)(nil)
	_ domain.BusinessMetricRepo = (*Store)(nil)
)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		posts:       make(map[string]domain.Post),
		subscribers: make(map[int64]domain.SubscriberCriteria),
		roles:       make(map[int64]domain.RoleSet),
		sessions:    make(map[string][]byte),
		jobs:        make(map[string]*jobStatus),
	}
}

// LoadCriteria возвращает сохранённые критерии.
func (s *Store) LoadCriteria(context.Context) (domain.Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.criteria == nil {
		return domain.Criteria{}, domain.ErrNotFound
	}
	return s.criteria.Clone(), nil
}

// SaveCriteria сохраняет критерии.
func (s *Store) SaveCriteria(_ context.Context, c domain.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := c.Clone()
	s.criteria = &clone
	return nil
}

// SavePost создаёт или обновляет пост.
func (s *Store) SavePost(_ context.Context, p domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p.Clone()
	return nil
}

// GetPost возвращает пост по идентификатору.
func (s *Store) GetPost(_ context.Context, id string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return p.Clone(), nil
}

// LoadPendingPosts возвращает посты, ожидающие модерации.
func (s *Store) LoadPendingPosts(ctx context.Context) ([]domain.Post, error) {
	return s.ListPosts(ctx, domain.PostFilter{States: []domain.PostState{domain.PostStatePendingReview}})
}

// ListPosts возвращает посты по фильтру, старые первыми.
func (s *Store) ListPosts(_ context.Context, f domain.PostFilter) ([]domain.Post, error) {
	s.mu.RLock()
	out := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if f.Match(p) {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeletePost удаляет пост.
func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return domain.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

// ListSubscribers возвращает настройки всех подписчиков.
func (s *Store) ListSubscribers(context.Context) ([]domain.SubscriberCriteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SubscriberCriteria, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// SaveSubscriber сохраняет настройки подписчика.
func (s *Store) SaveSubscriber(_ context.Context, sub domain.SubscriberCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.UserID] = sub.Clone()
	return nil
}

// DeleteSubscriber удаляет настройки подписчика.
func (s *Store) DeleteSubscriber(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, userID)
	return nil
}

// ListRoles возвращает роли пользователей.
func (s *Store) ListRoles(context.Context) (map[int64]domain.RoleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.RoleSet, len(s.roles))
	for id, rs := range s.roles {
		out[id] = append(domain.RoleSet(nil), rs...)
	}
	return out, nil
}

// GrantRole выдаёт роль пользователю.
func (s *Store) GrantRole(_ context.Context, userID int64, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append(s.roles[userID], role).Normalize()
	return nil
}

// RevokeRole отзывает роль у пользователя.
func (s *Store) RevokeRole(_ context.Context, userID int64, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(domain.RoleSet, 0, len(s.roles[userID]))
	for _, r := range s.roles[userID] {
		if r != role {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.roles, userID)
		return nil
	}
	s.roles[userID] = kept
	return nil
}

// LoadSession возвращает сохранённую MTProto-сессию.
func (s *Store) LoadSession(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// StoreSession сохраняет MTProto-сессию.
func (s *Store) StoreSession(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[name] = append([]byte(nil), data...)
	return nil
}

// EnsureScoreJob регистрирует попытку обработки задачи.
func (s *Store) EnsureScoreJob(_ context.Context, jobID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[jobID]
	if !ok {
		st = &jobStatus{}
		s.jobs[jobID] = st
	}
	if st.done {
		return true, st.attempts, nil
	}
	st.attempts++
	return false, st.attempts, nil
}

// MarkScoreJobDone помечает задачу обработанной.
func (s *Store) MarkScoreJobDone(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[jobID]
	if !ok {
		st = &jobStatus{}
		s.jobs[jobID] = st
	}
	st.done = true
	return nil
}

// RecordBusinessMetric сохраняет бизнес-событие.
func (s *Store) RecordBusinessMetric(_ context.Context, m domain.BusinessMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

// BusinessMetrics возвращает записанные события.
func (s *Store) BusinessMetrics() []domain.BusinessMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BusinessMetric(nil), s.metrics...)
}
