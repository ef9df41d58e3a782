package criteria

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
)

// Store хранит текущий снимок глобальных критериев.
// Читатели получают неизменяемый снимок, обновления выполняются одним писателем:
// копия, изменение, проверка, сохранение, замена указателя.
type Store struct {
	repo    domain.CriteriaRepo
	log     zerolog.Logger
	writeMu sync.Mutex
	current atomic.Pointer[domain.Criteria]
	now     func() time.Time
}

// NewStore создаёт хранилище с критериями по умолчанию до вызова Load.
func NewStore(repo domain.CriteriaRepo, logger zerolog.Logger) *Store {
	s := &Store{repo: repo, log: logger, now: time.Now}
	def := domain.DefaultCriteria()
	s.current.Store(&def)
	return s
}

// Load читает критерии из хранилища. Если они ещё не сохранялись, сохраняет seed.
func (s *Store) Load(ctx context.Context, seed domain.Criteria) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c, err := s.repo.LoadCriteria(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c = seed.Clone()
		c.Normalize()
		if err := c.Validate(); err != nil {
			return fmt.Errorf("seed criteria: %w", err)
		}
		c.UpdatedAt = s.now()
		if err := s.repo.SaveCriteria(ctx, c); err != nil {
			return fmt.Errorf("save seed criteria: %w", err)
		}
		s.log.Info().Msg("criteria: seeded initial criteria")
	case err != nil:
		return fmt.Errorf("load criteria: %w", err)
	default:
		c.Normalize()
	}
	s.warnConflicts(c)
	s.current.Store(&c)
	return nil
}

// Snapshot возвращает текущий снимок. Срезы снимка нельзя изменять.
func (s *Store) Snapshot() domain.Criteria {
	return *s.current.Load()
}

// Update применяет изменение к копии критериев и публикует её после сохранения.
// При ошибке проверки или сохранения текущий снимок не меняется.
func (s *Store) Update(ctx context.Context, mutate func(c *domain.Criteria) error) (domain.Criteria, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().Clone()
	if err := mutate(&next); err != nil {
		return domain.Criteria{}, err
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		return domain.Criteria{}, err
	}
	next.UpdatedAt = s.now()
	if err := s.repo.SaveCriteria(ctx, next); err != nil {
		return domain.Criteria{}, fmt.Errorf("save criteria: %w", err)
	}
	s.warnConflicts(next)
	s.current.Store(&next)
	return next, nil
}

// SetOption изменяет одну настройку по имени.
func (s *Store) SetOption(ctx context.Context, name, value string) (domain.Criteria, error) {
	return s.Update(ctx, func(c *domain.Criteria) error {
		return ApplyOption(c, name, value)
	})
}

// Replace заменяет критерии целиком.
func (s *Store) Replace(ctx context.Context, c domain.Criteria) (domain.Criteria, error) {
	return s.Update(ctx, func(cur *domain.Criteria) error {
		*cur = c.Clone()
		return nil
	})
}

func (s *Store) warnConflicts(c domain.Criteria) {
	if conflicts := c.SourceConflicts(); len(conflicts) > 0 {
		s.log.Warn().Strs("sources", conflicts).Msg("criteria: sources listed in both boost and reduce sets, boost takes precedence")
	}
}
