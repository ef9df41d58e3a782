package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tg-importance-bot/internal/domain"
)

var (
	ErrSourceLimit   = errors.New("превышен лимит источников")
	ErrSourceInvalid = errors.New("некорректный источник")
	ErrNotMonitored  = errors.New("источник не отслеживается")
)

var aliasRegex = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{5,})/?$`)

// ParseSource приводит ввод пользователя к ключу источника: "@alias" или числовой идентификатор.
func ParseSource(input string) (string, error) {
	trim := strings.TrimSpace(input)
	if id, err := strconv.ParseInt(trim, 10, 64); err == nil && id != 0 {
		return strconv.FormatInt(id, 10), nil
	}
	matches := aliasRegex.FindStringSubmatch(trim)
	if len(matches) < 2 {
		return "", ErrSourceInvalid
	}
	return "@" + strings.ToLower(matches[1]), nil
}

type index struct {
	byUser   map[int64]domain.SubscriberCriteria
	bySource map[string][]int64
}

// Service управляет персональными настройками подписчиков и индексом источников.
// Индекс публикуется снимком: конвейер читает его без блокировок.
type Service struct {
	repo    domain.SubscriberRepo
	limit   int
	writeMu sync.Mutex
	current atomic.Pointer[index]
	now     func() time.Time
}

// NewService создаёт сервис подписок. limit ограничивает число источников на подписчика, 0 — без ограничения.
func NewService(repo domain.SubscriberRepo, limit int) *Service {
	s := &Service{repo: repo, limit: limit, now: time.Now}
	s.current.Store(buildIndex(nil))
	return s
}

// Load перечитывает настройки всех подписчиков.
func (s *Service) Load(ctx context.Context) error {
	subs, err := s.repo.ListSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("загрузка подписчиков: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(buildIndex(subs))
	return nil
}

// ForMessage возвращает подписчиков, отслеживающих источник сообщения, по возрастанию идентификатора.
func (s *Service) ForMessage(msg domain.Message) []domain.SubscriberCriteria {
	idx := s.current.Load()
	seen := make(map[int64]struct{})
	var out []domain.SubscriberCriteria
	for _, key := range msg.SourceKeys() {
		for _, id := range idx.bySource[key] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, idx.byUser[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Get возвращает настройки подписчика или значения по умолчанию.
func (s *Service) Get(userID int64) domain.SubscriberCriteria {
	if sub, ok := s.current.Load().byUser[userID]; ok {
		return sub.Clone()
	}
	return domain.NewSubscriberCriteria(userID)
}

// Monitor добавляет источник в список отслеживаемых.
func (s *Service) Monitor(ctx context.Context, userID int64, source string) (domain.SubscriberCriteria, error) {
	key, err := ParseSource(source)
	if err != nil {
		return domain.SubscriberCriteria{}, err
	}
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		for _, existing := range sub.Sources {
			if existing == key {
				return nil
			}
		}
		if s.limit > 0 && len(sub.Sources) >= s.limit {
			return ErrSourceLimit
		}
		sub.Sources = append(sub.Sources, key)
		return nil
	})
}

// Unmonitor удаляет источник из списка отслеживаемых.
func (s *Service) Unmonitor(ctx context.Context, userID int64, source string) (domain.SubscriberCriteria, error) {
	key, err := ParseSource(source)
	if err != nil {
		return domain.SubscriberCriteria{}, err
	}
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		kept, removed := without(sub.Sources, key)
		if !removed {
			return ErrNotMonitored
		}
		sub.Sources = kept
		return nil
	})
}

// SetThreshold задаёт персональный порог уведомлений.
func (s *Service) SetThreshold(ctx context.Context, userID int64, threshold float64) (domain.SubscriberCriteria, error) {
	if threshold < 0 || threshold > 1 {
		return domain.SubscriberCriteria{}, fmt.Errorf("%w: threshold must be within [0,1]", domain.ErrInvalidOption)
	}
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		sub.Threshold = threshold
		return nil
	})
}

// AddKeywords добавляет персональные ключевые слова.
func (s *Service) AddKeywords(ctx context.Context, userID int64, words []string) (domain.SubscriberCriteria, error) {
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		sub.Keywords = domain.NormalizeKeywords(append(sub.Keywords, words...))
		return nil
	})
}

// RemoveKeywords удаляет персональные ключевые слова.
func (s *Service) RemoveKeywords(ctx context.Context, userID int64, words []string) (domain.SubscriberCriteria, error) {
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		sub.Keywords = subtract(sub.Keywords, words)
		return nil
	})
}

// AddExcludes добавляет персональные стоп-слова.
func (s *Service) AddExcludes(ctx context.Context, userID int64, words []string) (domain.SubscriberCriteria, error) {
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		sub.ExcludeKeywords = domain.NormalizeKeywords(append(sub.ExcludeKeywords, words...))
		return nil
	})
}

// RemoveExcludes удаляет персональные стоп-слова.
func (s *Service) RemoveExcludes(ctx context.Context, userID int64, words []string) (domain.SubscriberCriteria, error) {
	return s.update(ctx, userID, func(sub *domain.SubscriberCriteria) error {
		sub.ExcludeKeywords = subtract(sub.ExcludeKeywords, words)
		return nil
	})
}

// Delete удаляет все настройки подписчика.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.repo.DeleteSubscriber(ctx, userID); err != nil {
		return fmt.Errorf("удаление подписчика: %w", err)
	}
	s.current.Store(s.current.Load().with(userID, nil))
	return nil
}

func (s *Service) update(ctx context.Context, userID int64, mutate func(sub *domain.SubscriberCriteria) error) (domain.SubscriberCriteria, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	idx := s.current.Load()
	sub, ok := idx.byUser[userID]
	if ok {
		sub = sub.Clone()
	} else {
		sub = domain.NewSubscriberCriteria(userID)
	}
	if err := mutate(&sub); err != nil {
		return domain.SubscriberCriteria{}, err
	}
	sub.UpdatedAt = s.now()
	if err := s.repo.SaveSubscriber(ctx, sub); err != nil {
		return domain.SubscriberCriteria{}, fmt.Errorf("сохранение подписчика: %w", err)
	}
	s.current.Store(idx.with(userID, &sub))
	return sub.Clone(), nil
}

func buildIndex(subs []domain.SubscriberCriteria) *index {
	idx := &index{
		byUser:   make(map[int64]domain.SubscriberCriteria, len(subs)),
		bySource: make(map[string][]int64),
	}
	for _, sub := range subs {
		idx.add(sub.Clone())
	}
	return idx
}

func (idx *index) add(sub domain.SubscriberCriteria) {
	idx.byUser[sub.UserID] = sub
	for _, src := range sub.Sources {
		key := domain.NormalizeSourceKey(src)
		idx.bySource[key] = append(idx.bySource[key], sub.UserID)
	}
}

// with возвращает новый индекс с заменённым (или удалённым при sub == nil) подписчиком.
func (idx *index) with(userID int64, sub *domain.SubscriberCriteria) *index {
	subs := make([]domain.SubscriberCriteria, 0, len(idx.byUser)+1)
	for id, existing := range idx.byUser {
		if id != userID {
			subs = append(subs, existing)
		}
	}
	if sub != nil {
		subs = append(subs, *sub)
	}
	return buildIndex(subs)
}

func without(items []string, item string) ([]string, bool) {
	out := make([]string, 0, len(items))
	removed := false
	for _, it := range items {
		if it == item {
			removed = true
			continue
		}
		out = append(out, it)
	}
	return out, removed
}

func subtract(items, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, w := range domain.NormalizeKeywords(remove) {
		drop[w] = struct{}{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := drop[it]; !ok {
			out = append(out, it)
		}
	}
	return out
}
