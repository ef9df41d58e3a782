package domain

import (
	"sort"
	"strings"
)

// Role описывает роль пользователя в боте.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSubmitter  Role = "submitter"
	RoleSubscriber Role = "subscriber"
)

// Capability описывает право на выполнение группы действий.
type Capability string

const (
	// CapModerate — решения по постам в очереди, повтор и удаление постов.
	CapModerate Capability = "moderate"
	// CapConfigure — изменение глобальных критериев и ролей.
	CapConfigure Capability = "configure"
	// CapSubmit — ручная отправка постов на публикацию.
	CapSubmit Capability = "submit"
	// CapSubscribe — персональные уведомления об источниках.
	CapSubscribe Capability = "subscribe"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:      {CapModerate, CapConfigure, CapSubmit, CapSubscribe},
	RoleSubmitter:  {CapSubmit, CapSubscribe},
	RoleSubscriber: {CapSubscribe},
}

// ParseRole разбирает роль из строки.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleCapabilities[role]; ok {
		return role, true
	}
	return "", false
}

// CapabilitiesForRole возвращает права роли.
func CapabilitiesForRole(role Role) []Capability {
	return append([]Capability(nil), roleCapabilities[role]...)
}

// RoleSet — набор ролей пользователя.
type RoleSet []Role

// Has проверяет наличие права хотя бы у одной из ролей.
// Пустой набор трактуется как роль подписчика.
func (rs RoleSet) Has(c Capability) bool {
	roles := rs
	if len(roles) == 0 {
		roles = RoleSet{RoleSubscriber}
	}
	for _, r := range roles {
		for _, rc := range roleCapabilities[r] {
			if rc == c {
				return true
			}
		}
	}
	return false
}

// Normalize удаляет неизвестные роли и дубли, сортирует набор.
func (rs RoleSet) Normalize() RoleSet {
	seen := make(map[Role]struct{}, len(rs))
	out := make(RoleSet, 0, len(rs))
	for _, r := range rs {
		if _, ok := roleCapabilities[r]; !ok {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
