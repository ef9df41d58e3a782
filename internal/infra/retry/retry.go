package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy описывает ограниченный повтор с экспоненциальной задержкой.
type Policy struct {
	// Attempts — общее число попыток, включая первую.
	Attempts int
	// Timeout ограничивает одну попытку; ноль означает отсутствие ограничения.
	Timeout  time.Duration
	Initial  time.Duration
	Max      time.Duration
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет fn до успеха, исчерпания попыток, постоянной ошибки или отмены контекста.
// Возвращается последняя ошибка fn либо ошибка контекста.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = nonZero(p.Initial, 200*time.Millisecond)
	exp.MaxInterval = nonZero(p.Max, 5*time.Second)
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	err := backoff.Retry(func() error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()
		err := fn(attemptCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, policy)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
