package domain

import (
	"strconv"
	"strings"
	"time"
)

// Message описывает входящее сообщение из отслеживаемого чата или канала.
type Message struct {
	SourceID       int64     `json:"source_id"`
	SourceUsername string    `json:"source_username,omitempty"`
	SourceTitle    string    `json:"source_title,omitempty"`
	SenderID       int64     `json:"sender_id,omitempty"`
	MessageID      int64     `json:"message_id"`
	Text           string    `json:"text"`
	Date           time.Time `json:"date"`
	Forwarded      bool      `json:"forwarded,omitempty"`
	Link           string    `json:"link,omitempty"`
}

// SourceKeys возвращает идентификаторы источника в нормализованном виде:
// числовой идентификатор и @alias, если он известен.
func (m Message) SourceKeys() []string {
	keys := make([]string, 0, 2)
	if m.SourceID != 0 {
		keys = append(keys, strconv.FormatInt(m.SourceID, 10))
	}
	if alias := NormalizeSourceKey(m.SourceUsername); alias != "" && strings.HasPrefix(alias, "@") {
		keys = append(keys, alias)
	}
	return keys
}

// DedupeKey уникально идентифицирует сообщение в источнике.
// Для источника без числового идентификатора используется его @alias.
func (m Message) DedupeKey() string {
	source := strconv.FormatInt(m.SourceID, 10)
	if m.SourceID == 0 {
		if alias := NormalizeSourceKey(m.SourceUsername); alias != "" {
			source = alias
		}
	}
	return "msg:" + source + ":" + strconv.FormatInt(m.MessageID, 10)
}

// SourceLabel возвращает человекочитаемое название источника.
func (m Message) SourceLabel() string {
	switch {
	case strings.TrimSpace(m.SourceTitle) != "":
		return strings.TrimSpace(m.SourceTitle)
	case m.SourceUsername != "":
		return "@" + strings.TrimPrefix(m.SourceUsername, "@")
	case m.SourceID != 0:
		return strconv.FormatInt(m.SourceID, 10)
	default:
		return ""
	}
}

// NormalizeSourceKey приводит идентификатор источника к каноническому виду:
// "@alias" в нижнем регистре или числовой идентификатор. Поддерживаются ссылки t.me.
func NormalizeSourceKey(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "https://telegram.me/", "telegram.me/"} {
		if strings.HasPrefix(lower, prefix) {
			value = value[len(prefix):]
			if idx := strings.IndexAny(value, "/?#"); idx >= 0 {
				value = value[:idx]
			}
			break
		}
	}
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return strconv.FormatInt(id, 10)
	}
	value = strings.TrimPrefix(value, "@")
	if value == "" {
		return ""
	}
	return "@" + strings.ToLower(value)
}

// OracleContext передаёт оракулу дополнительный контекст сообщения.
type OracleContext struct {
	Source    string
	Forwarded bool
	Keywords  []string
}

// OracleVerdict содержит ответ внешнего оракула важности.
type OracleVerdict struct {
	Score  float64
	Reason string
}

// ScoreOrigin описывает происхождение базовой оценки.
type ScoreOrigin string

const (
	// ScoreOriginOracle — оценка получена от внешнего оракула.
	ScoreOriginOracle ScoreOrigin = "oracle"
	// ScoreOriginHeuristic — оракул недоступен, использована эвристика по длине.
	ScoreOriginHeuristic ScoreOrigin = "heuristic"
	// ScoreOriginRejected — сообщение отклонено по длине и не оценивалось.
	ScoreOriginRejected ScoreOrigin = "rejected"
)

// Adjustment описывает одно применённое правило корректировки.
type Adjustment struct {
	Rule  string  `json:"rule"`
	Delta float64 `json:"delta"`
}

// ImportanceScore хранит итоговую оценку важности и её разложение.
// Значение создаётся один раз и не изменяется; повторная оценка создаёт новое значение.
type ImportanceScore struct {
	Raw         float64      `json:"raw"`
	Origin      ScoreOrigin  `json:"origin"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
	Final       float64      `json:"final"`
	Reason      string       `json:"reason,omitempty"`
	Flags       []string     `json:"flags,omitempty"`
	ScoredAt    time.Time    `json:"scored_at"`
}

// Rejected сообщает, что сообщение не прошло проверку длины.
func (s ImportanceScore) Rejected() bool {
	return s.Origin == ScoreOriginRejected
}

// HasFlag проверяет наличие флага в разложении оценки.
func (s ImportanceScore) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ScoreFlagSourceConflict помечает источник, указанный одновременно в списках усиления и понижения.
const ScoreFlagSourceConflict = "source_conflict"
