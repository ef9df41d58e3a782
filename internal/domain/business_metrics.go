package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     *int64
	PostID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventMessageScored фиксирует оценку входящего сообщения.
	BusinessMetricEventMessageScored = "message_scored"
	// BusinessMetricEventPostQueued фиксирует постановку поста в очередь модерации.
	BusinessMetricEventPostQueued = "post_queued"
	// BusinessMetricEventPostDecided фиксирует решение администратора.
	BusinessMetricEventPostDecided = "post_decided"
	// BusinessMetricEventPostPublished фиксирует публикацию поста в канал.
	BusinessMetricEventPostPublished = "post_published"
	// BusinessMetricEventPostStuck фиксирует исчерпание попыток публикации.
	BusinessMetricEventPostStuck = "post_stuck"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
