package domain

import (
	"context"
	"time"
)

// ScoreJobOrigin описывает источник входящего сообщения.
type ScoreJobOrigin string

const (
	// ScoreJobOriginMTProto — сообщение получено пользовательским клиентом Telegram.
	ScoreJobOriginMTProto ScoreJobOrigin = "mtproto"
	// ScoreJobOriginKafka — сообщение прочитано из топика Kafka.
	ScoreJobOriginKafka ScoreJobOrigin = "kafka"
)

// ScoreJob содержит сообщение, ожидающее оценки конвейером.
type ScoreJob struct {
	ID         string         `json:"job_id,omitempty"`
	Message    Message        `json:"message"`
	Origin     ScoreJobOrigin `json:"origin"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// MessageQueue описывает очередь задач на оценку сообщений.
type MessageQueue interface {
	Enqueue(ctx context.Context, job ScoreJob) error
	Receive(ctx context.Context) (ScoreJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error

// ScoreJobStatusRepo отвечает за отслеживание попыток обработки задач.
type ScoreJobStatusRepo interface {
	// EnsureScoreJob регистрирует попытку обработки и возвращает признак завершённости
	// и номер текущей попытки.
	EnsureScoreJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	// MarkScoreJobDone помечает задачу как окончательно обработанную.
	MarkScoreJobDone(ctx context.Context, jobID string) error
}
