package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"tg-importance-bot/internal/domain"
)

// Service отвечает на вопрос «может ли пользователь выполнить действие».
// Администраторы из конфигурации имеют роль admin всегда, даже без записи в хранилище.
type Service struct {
	repo      domain.RoleRepo
	bootstrap map[int64]struct{}
	writeMu   sync.Mutex
	roles     atomic.Pointer[map[int64]domain.RoleSet]
}

// NewService создаёт сервис прав с администраторами из конфигурации.
func NewService(repo domain.RoleRepo, adminIDs []int64) *Service {
	s := &Service{repo: repo, bootstrap: make(map[int64]struct{}, len(adminIDs))}
	for _, id := range adminIDs {
		s.bootstrap[id] = struct{}{}
	}
	empty := map[int64]domain.RoleSet{}
	s.roles.Store(&empty)
	return s
}

// Load перечитывает роли из хранилища.
func (s *Service) Load(ctx context.Context) error {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.roles.Store(&roles)
	return nil
}

// Roles возвращает роли пользователя.
func (s *Service) Roles(userID int64) domain.RoleSet {
	rs := append(domain.RoleSet(nil), (*s.roles.Load())[userID]...)
	if _, ok := s.bootstrap[userID]; ok {
		rs = append(rs, domain.RoleAdmin)
	}
	return rs.Normalize()
}

// Can проверяет наличие права у пользователя.
func (s *Service) Can(userID int64, c domain.Capability) bool {
	return s.Roles(userID).Has(c)
}

// Require возвращает ErrForbidden, если права нет.
func (s *Service) Require(userID int64, c domain.Capability) error {
	if !s.Can(userID, c) {
		return fmt.Errorf("%w: user %d lacks %s", domain.ErrForbidden, userID, c)
	}
	return nil
}

// Identities возвращает пользователей с указанным правом по возрастанию идентификатора.
// Подписчики без явных ролей не перечисляются.
func (s *Service) Identities(c domain.Capability) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if s.Can(id, c) {
			out = append(out, id)
		}
	}
	for id := range s.bootstrap {
		add(id)
	}
	for id := range *s.roles.Load() {
		add(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grant выдаёт роль пользователю.
func (s *Service) Grant(ctx context.Context, userID int64, role domain.Role) error {
	return s.change(ctx, userID, role, true)
}

// Revoke отзывает роль у пользователя.
func (s *Service) Revoke(ctx context.Context, userID int64, role domain.Role) error {
	return s.change(ctx, userID, role, false)
}

func (s *Service) change(ctx context.Context, userID int64, role domain.Role, grant bool) error {
	if _, ok := domain.ParseRole(string(role)); !ok {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidOption, role)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	if grant {
		err = s.repo.GrantRole(ctx, userID, role)
	} else {
		err = s.repo.RevokeRole(ctx, userID, role)
	}
	if err != nil {
		return fmt.Errorf("change role: %w", err)
	}

	cur := *s.roles.Load()
	next := make(map[int64]domain.RoleSet, len(cur)+1)
	for id, rs := range cur {
		next[id] = rs
	}
	updated := make(domain.RoleSet, 0, len(cur[userID])+1)
	for _, r := range cur[userID] {
		if r != role {
			updated = append(updated, r)
		}
	}
	if grant {
		updated = append(updated, role)
	}
	if len(updated) == 0 {
		delete(next, userID)
	} else {
		next[userID] = updated.Normalize()
	}
	s.roles.Store(&next)
	return nil
}
