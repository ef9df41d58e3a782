package domain

import "context"

type postIDKey struct{}

// WithPostID сохраняет идентификатор публикуемого поста в контексте отправки.
// Отправитель использует его как ключ защиты от повторной публикации.
func WithPostID(ctx context.Context, postID string) context.Context {
	return context.WithValue(ctx, postIDKey{}, postID)
}

// PostIDFromContext возвращает идентификатор поста из контекста отправки.
func PostIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(postIDKey{}).(string)
	return id, ok && id != ""
}
