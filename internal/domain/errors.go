package domain

import "errors"

var (
	// ErrOracleUnavailable — оракул не ответил вовремя или вернул ошибку.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrInvalidMessage — длина сообщения вне допустимых границ.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrAlreadyDecided — по посту уже принято решение.
	ErrAlreadyDecided = errors.New("post already decided")
	// ErrLifecycleViolation — недопустимый переход жизненного цикла поста.
	ErrLifecycleViolation = errors.New("lifecycle violation")
	// ErrPublicationFailed — не удалось опубликовать пост в канал.
	ErrPublicationFailed = errors.New("publication failed")
	// ErrNotificationFailed — не удалось доставить уведомление.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrPostNotFound — пост не найден.
	ErrPostNotFound = errors.New("post not found")
	// ErrNotFound — запись отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrForbidden — у пользователя нет нужной возможности.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidOption — некорректное значение настройки.
	ErrInvalidOption = errors.New("invalid option")
)
