package dedupe

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Set запоминает недавно увиденные ключи с ограничением по размеру и времени жизни.
type Set struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// New создаёт набор на size ключей с временем жизни ttl.
func New(size int, ttl time.Duration) *Set {
	if size <= 0 {
		size = 10000
	}
	return &Set{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen отмечает ключ и сообщает, встречался ли он раньше.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen.Contains(key) {
		return true
	}
	s.seen.Add(key, struct{}{})
	return false
}

// Forget удаляет ключ, чтобы сообщение можно было принять повторно.
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.Remove(key)
}

// Len возвращает число запомненных ключей.
func (s *Set) Len() int {
	return s.seen.Len()
}
