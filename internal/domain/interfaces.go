package domain

import (
	"context"
	"time"
)

// ScoringOracle оценивает важность текста внешним сервисом.
type ScoringOracle interface {
	ScoreText(ctx context.Context, text string, oc OracleContext) (OracleVerdict, error)
}

// Sender отправляет сообщения в канал публикации и пользователям.
type Sender interface {
	// Send публикует текст в канал и возвращает идентификатор сообщения.
	Send(ctx context.Context, channelID int64, text string) (int, error)
	// Notify отправляет личное сообщение пользователю.
	Notify(ctx context.Context, userID int64, text string) error
}

// CriteriaRepo хранит глобальные критерии.
type CriteriaRepo interface {
	// LoadCriteria возвращает ErrNotFound, если критерии ещё не сохранялись.
	LoadCriteria(ctx context.Context) (Criteria, error)
	SaveCriteria(ctx context.Context, c Criteria) error
}

// PostRepo хранит посты модерации.
type PostRepo interface {
	SavePost(ctx context.Context, p Post) error
	// GetPost возвращает ErrPostNotFound для неизвестного идентификатора.
	GetPost(ctx context.Context, id string) (Post, error)
	LoadPendingPosts(ctx context.Context) ([]Post, error)
	ListPosts(ctx context.Context, f PostFilter) ([]Post, error)
	DeletePost(ctx context.Context, id string) error
}

// SubscriberRepo хранит персональные настройки подписчиков.
type SubscriberRepo interface {
	ListSubscribers(ctx context.Context) ([]SubscriberCriteria, error)
	SaveSubscriber(ctx context.Context, s SubscriberCriteria) error
	DeleteSubscriber(ctx context.Context, userID int64) error
}

// RoleRepo хранит роли пользователей.
type RoleRepo interface {
	ListRoles(ctx context.Context) (map[int64]RoleSet, error)
	GrantRole(ctx context.Context, userID int64, role Role) error
	RevokeRole(ctx context.Context, userID int64, role Role) error
}

// SessionRepo хранит MTProto-сессии.
type SessionRepo interface {
	LoadSession(ctx context.Context, name string) ([]byte, error)
	StoreSession(ctx context.Context, name string, data []byte) error
}

// Locker сериализует операции по ключу.
type Locker interface {
	// Lock блокирует ключ до вызова возвращённой функции или отмены контекста.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	// Once выполняет fn, только если ключ ещё не занят; при занятом ключе fn не вызывается.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get возвращает ErrNotFound при отсутствии ключа.
	Get(ctx context.Context, key string) ([]byte, error)
}
