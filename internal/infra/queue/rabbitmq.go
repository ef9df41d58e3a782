package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// RabbitMessageQueue реализует очередь задач оценки через AMQP.
// Сообщения подтверждаются вручную: ack(false) возвращает задачу в очередь.
type RabbitMessageQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int

	publishMu  sync.Mutex
	consumeMu  sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.MessageQueue = (*RabbitMessageQueue)(nil)

// NewRabbitMessageQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitMessageQueue(amqpURL, queue string, prefetch int) (*RabbitMessageQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitMessageQueue{conn: conn, ch: ch, queue: queue, prefetch: prefetch}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitMessageQueue) Enqueue(ctx context.Context, job domain.ScoreJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RabbitMessageQueue) Receive(ctx context.Context) (domain.ScoreJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.ScoreJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.ScoreJob{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return domain.ScoreJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.ScoreJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				// Нечитаемое сообщение не вернётся в очередь.
				_ = d.Nack(false, false)
				return domain.ScoreJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			if job.ID == "" {
				job.ID = d.MessageId
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitMessageQueue) consume() (<-chan amqp.Delivery, error) {
	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitMessageQueue) Close() error {
	_ = q.ch.Close()
	return q.conn.Close()
}
