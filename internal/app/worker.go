package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
	"tg-importance-bot/internal/usecase/pipeline"
)

// Processor обрабатывает входящее сообщение.
type Processor interface {
	Process(ctx context.Context, msg domain.Message) (pipeline.Result, error)
}

// JobWorker читает задачи оценки из очереди и передаёт сообщения конвейеру.
// Задача подтверждается только после отметки о завершении в хранилище статусов.
type JobWorker struct {
	queue       domain.MessageQueue
	statuses    domain.ScoreJobStatusRepo
	processor   Processor
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// NewJobWorker создаёт обработчик очереди. После maxAttempts неудачных попыток задача отбрасывается.
func NewJobWorker(queue domain.MessageQueue, statuses domain.ScoreJobStatusRepo, processor Processor, maxAttempts int, logger zerolog.Logger) *JobWorker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &JobWorker{
		queue:       queue,
		statuses:    statuses,
		processor:   processor,
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		log:         logger,
	}
}

// Run запускает workers параллельных читателей очереди и ждёт их остановки.
func (w *JobWorker) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *JobWorker) loop(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.Handle(ctx, job, ack)
	}
}

// Handle обрабатывает одну задачу и подтверждает или возвращает её в очередь.
func (w *JobWorker) Handle(ctx context.Context, job domain.ScoreJob, ack domain.AckFunc) {
	if job.ID == "" {
		job.ID = job.Message.DedupeKey()
	}
	jobLog := w.log.With().Str("job_id", job.ID).Str("origin", string(job.Origin)).Logger()

	done, attempt, err := w.statuses.EnsureScoreJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("worker: не удалось зарегистрировать задачу")
		w.nack(jobLog, ack)
		w.sleep(ctx)
		return
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	if done {
		jobLog.Info().Msg("worker: задача уже обработана, подтверждаем")
		metrics.JobsProcessed.WithLabelValues("duplicate").Inc()
		w.ack(jobLog, ack)
		return
	}

	res, err := w.processor.Process(ctx, job.Message)
	switch {
	case err != nil && ctx.Err() != nil:
		jobLog.Info().Msg("worker: обработка прервана остановкой")
		w.nack(jobLog, ack)
		return
	case err != nil && attempt < w.maxAttempts:
		jobLog.Warn().Err(err).Msg("worker: задача завершилась ошибкой, повторим позже")
		metrics.JobsProcessed.WithLabelValues("retry").Inc()
		w.nack(jobLog, ack)
		return
	case err != nil:
		jobLog.Error().Err(err).Msg("worker: достигнут предел попыток, задача отброшена")
		metrics.JobsProcessed.WithLabelValues("dropped").Inc()
	default:
		metrics.JobsProcessed.WithLabelValues("ok").Inc()
		jobLog.Debug().Str("action", string(res.Disposition.Action)).Float64("score", res.Score.Final).
			Int("notified", res.Notified).Msg("worker: сообщение обработано")
	}

	if err := w.statuses.MarkScoreJobDone(context.WithoutCancel(ctx), job.ID); err != nil {
		jobLog.Error().Err(err).Msg("worker: не удалось пометить задачу обработанной")
		w.nack(jobLog, ack)
		return
	}
	w.ack(jobLog, ack)
}

func (w *JobWorker) ack(log zerolog.Logger, ack domain.AckFunc) {
	if err := ack(true); err != nil {
		log.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
	}
}

func (w *JobWorker) nack(log zerolog.Logger, ack domain.AckFunc) {
	if err := ack(false); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker: не удалось вернуть задачу в очередь")
	}
}

func (w *JobWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}
