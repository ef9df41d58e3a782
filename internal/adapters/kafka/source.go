package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/retry"
)

// Reader — часть kafka.Reader, нужная источнику.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer — часть kafka.Writer для отправки в топик недоставленных сообщений.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Handler принимает разобранное входящее сообщение.
type Handler func(ctx context.Context, msg domain.Message) error

// Config описывает подключение к Kafka.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Source читает входящие сообщения из топика Kafka. Смещение фиксируется только после
// успешной передачи сообщения обработчику или записи его в DLQ.
type Source struct {
	reader Reader
	dlq    Writer
	log    zerolog.Logger
	policy retry.Policy
}

// NewSource создаёт источник с reader группы потребителей и writer топика <topic>_dlq.
func NewSource(cfg Config, log zerolog.Logger) *Source {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	dlq := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic + "_dlq",
		MaxAttempts:  3,
		RequiredAcks: kafkago.RequireAll,
	}
	return NewSourceWith(reader, dlq, log)
}

// NewSourceWith создаёт источник поверх готовых reader и writer. dlq может быть nil.
func NewSourceWith(reader Reader, dlq Writer, log zerolog.Logger) *Source {
	return &Source{
		reader: reader,
		dlq:    dlq,
		log:    log,
		policy: retry.Policy{Attempts: 5, Initial: time.Second, Max: 16 * time.Second},
	}
}

// Run читает сообщения до отмены контекста.
func (s *Source) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Msg("kafka: fetch message")
			continue
		}
		if err := s.process(ctx, msg, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("kafka: message left uncommitted")
			continue
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("kafka: commit message")
		}
	}
}

// Close закрывает reader и writer.
func (s *Source) Close() error {
	err := s.reader.Close()
	if s.dlq != nil {
		err = errors.Join(err, s.dlq.Close())
	}
	return err
}

func (s *Source) process(ctx context.Context, raw kafkago.Message, handle Handler) error {
	msg, err := DecodeMessage(raw.Value)
	if err != nil {
		s.log.Warn().Err(err).Int("partition", raw.Partition).Int64("offset", raw.Offset).Msg("kafka: malformed message")
		return s.deadLetter(ctx, raw, err)
	}
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return handle(ctx, msg)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	s.log.Warn().Err(err).Str("key", msg.DedupeKey()).Msg("kafka: handler failed, sending to DLQ")
	return s.deadLetter(ctx, raw, err)
}

func (s *Source) deadLetter(ctx context.Context, raw kafkago.Message, cause error) error {
	if s.dlq == nil {
		return nil
	}
	out := kafkago.Message{
		Key:   raw.Key,
		Value: raw.Value,
		Headers: append(append([]kafkago.Header(nil), raw.Headers...),
			kafkago.Header{Key: "original_partition", Value: []byte(strconv.Itoa(raw.Partition))},
			kafkago.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(raw.Offset, 10))},
			kafkago.Header{Key: "error", Value: []byte(cause.Error())},
			kafkago.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}
	if err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.dlq.WriteMessages(ctx, out)
	}); err != nil {
		return fmt.Errorf("write to dlq: %w", err)
	}
	return nil
}

// DecodeMessage разбирает JSON входящего сообщения. Источник и текст обязательны,
// а при отсутствии даты используется текущее время.
func DecodeMessage(data []byte) (domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.SourceID == 0 && strings.TrimSpace(msg.SourceUsername) == "" {
		return domain.Message{}, errors.New("message has no source")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return domain.Message{}, errors.New("message has no text")
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now().UTC()
	}
	return msg, nil
}
