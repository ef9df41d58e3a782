package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultImportanceThreshold = 0.7
	DefaultBoostIncrement      = 0.2
	DefaultReduceDecrement     = 0.2
	DefaultSourceBoost         = 0.1
	DefaultSourceReduce        = 0.1
	DefaultRecencyPenalty      = 0.1
	DefaultRecencyWindow       = 24 * time.Hour
	DefaultMinMessageLength    = 1
	DefaultMaxMessageLength    = 4096
)

// Criteria описывает глобальные правила оценки и маршрутизации сообщений.
// Экземпляр, опубликованный в хранилище критериев, не изменяется на месте.
type Criteria struct {
	ImportanceThreshold  float64       `json:"importance_threshold" yaml:"importance_threshold"`
	AutoPublishEnabled   bool          `json:"auto_publish_enabled" yaml:"auto_publish_enabled"`
	RequireAdminApproval bool          `json:"require_admin_approval" yaml:"require_admin_approval"`
	PublishChannelID     int64         `json:"publish_channel_id" yaml:"publish_channel_id"`
	MinMessageLength     int           `json:"min_message_length" yaml:"min_message_length"`
	MaxMessageLength     int           `json:"max_message_length" yaml:"max_message_length"`
	KeywordsBoost        []string      `json:"keywords_boost" yaml:"keywords_boost"`
	KeywordsReduce       []string      `json:"keywords_reduce" yaml:"keywords_reduce"`
	SourcesBoost         []string      `json:"sources_boost" yaml:"sources_boost"`
	SourcesReduce        []string      `json:"sources_reduce" yaml:"sources_reduce"`
	RecencySensitive     bool          `json:"recency_sensitive" yaml:"recency_sensitive"`
	RecencyWindow        time.Duration `json:"recency_window" yaml:"recency_window"`
	BoostIncrement       float64       `json:"boost_increment" yaml:"boost_increment"`
	ReduceDecrement      float64       `json:"reduce_decrement" yaml:"reduce_decrement"`
	SourceBoost          float64       `json:"source_boost" yaml:"source_boost"`
	SourceReduce         float64       `json:"source_reduce" yaml:"source_reduce"`
	RecencyPenalty       float64       `json:"recency_penalty" yaml:"recency_penalty"`
	UpdatedAt            time.Time     `json:"updated_at" yaml:"-"`
}

// DefaultCriteria возвращает критерии по умолчанию.
func DefaultCriteria() Criteria {
	return Criteria{
		ImportanceThreshold:  DefaultImportanceThreshold,
		RequireAdminApproval: true,
		MinMessageLength:     DefaultMinMessageLength,
		MaxMessageLength:     DefaultMaxMessageLength,
		KeywordsBoost:        []string{"важно", "срочно"},
		KeywordsReduce:       []string{"реклама", "спам"},
		RecencyWindow:        DefaultRecencyWindow,
		BoostIncrement:       DefaultBoostIncrement,
		ReduceDecrement:      DefaultReduceDecrement,
		SourceBoost:          DefaultSourceBoost,
		SourceReduce:         DefaultSourceReduce,
		RecencyPenalty:       DefaultRecencyPenalty,
	}
}

// Clone возвращает глубокую копию критериев.
func (c Criteria) Clone() Criteria {
	out := c
	out.KeywordsBoost = cloneStrings(c.KeywordsBoost)
	out.KeywordsReduce = cloneStrings(c.KeywordsReduce)
	out.SourcesBoost = cloneStrings(c.SourcesBoost)
	out.SourcesReduce = cloneStrings(c.SourcesReduce)
	return out
}

// Normalize приводит наборы к каноническому виду и заполняет нулевые шаги значениями по умолчанию.
func (c *Criteria) Normalize() {
	c.KeywordsBoost = NormalizeKeywords(c.KeywordsBoost)
	c.KeywordsReduce = NormalizeKeywords(c.KeywordsReduce)
	c.SourcesBoost = normalizeSources(c.SourcesBoost)
	c.SourcesReduce = normalizeSources(c.SourcesReduce)
	if c.BoostIncrement == 0 {
		c.BoostIncrement = DefaultBoostIncrement
	}
	if c.ReduceDecrement == 0 {
		c.ReduceDecrement = DefaultReduceDecrement
	}
	if c.SourceBoost == 0 {
		c.SourceBoost = DefaultSourceBoost
	}
	if c.SourceReduce == 0 {
		c.SourceReduce = DefaultSourceReduce
	}
	if c.RecencyPenalty == 0 {
		c.RecencyPenalty = DefaultRecencyPenalty
	}
	if c.RecencyWindow == 0 {
		c.RecencyWindow = DefaultRecencyWindow
	}
}

// Validate проверяет корректность критериев.
func (c Criteria) Validate() error {
	if c.ImportanceThreshold < 0 || c.ImportanceThreshold > 1 {
		return fmt.Errorf("%w: importance_threshold must be within [0,1]", ErrInvalidOption)
	}
	if c.MinMessageLength < 0 || c.MaxMessageLength < 0 {
		return fmt.Errorf("%w: message length bounds must be non-negative", ErrInvalidOption)
	}
	if c.MaxMessageLength > 0 && c.MinMessageLength > c.MaxMessageLength {
		return fmt.Errorf("%w: min_message_length exceeds max_message_length", ErrInvalidOption)
	}
	for name, step := range map[string]float64{
		"boost_increment":  c.BoostIncrement,
		"reduce_decrement": c.ReduceDecrement,
		"source_boost":     c.SourceBoost,
		"source_reduce":    c.SourceReduce,
		"recency_penalty":  c.RecencyPenalty,
	} {
		if step < 0 || step > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]", ErrInvalidOption, name)
		}
	}
	return nil
}

// SourceConflicts возвращает источники, указанные одновременно в списках усиления и понижения.
func (c Criteria) SourceConflicts() []string {
	reduce := make(map[string]struct{}, len(c.SourcesReduce))
	for _, s := range c.SourcesReduce {
		reduce[NormalizeSourceKey(s)] = struct{}{}
	}
	var conflicts []string
	for _, s := range c.SourcesBoost {
		key := NormalizeSourceKey(s)
		if _, ok := reduce[key]; ok {
			conflicts = append(conflicts, key)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

// LengthAllowed проверяет, что длина сообщения в символах укладывается в границы.
func (c Criteria) LengthAllowed(runes int) bool {
	if runes < c.MinMessageLength {
		return false
	}
	if c.MaxMessageLength > 0 && runes > c.MaxMessageLength {
		return false
	}
	return true
}

// SubscriberCriteria хранит персональные настройки подписчика.
type SubscriberCriteria struct {
	UserID          int64     `json:"user_id"`
	Threshold       float64   `json:"threshold"`
	Keywords        []string  `json:"keywords,omitempty"`
	ExcludeKeywords []string  `json:"exclude_keywords,omitempty"`
	Sources         []string  `json:"sources,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewSubscriberCriteria создаёт настройки подписчика со значениями по умолчанию.
func NewSubscriberCriteria(userID int64) SubscriberCriteria {
	return SubscriberCriteria{UserID: userID, Threshold: DefaultImportanceThreshold}
}

// Clone возвращает глубокую копию настроек подписчика.
func (s SubscriberCriteria) Clone() SubscriberCriteria {
	out := s
	out.Keywords = cloneStrings(s.Keywords)
	out.ExcludeKeywords = cloneStrings(s.ExcludeKeywords)
	out.Sources = cloneStrings(s.Sources)
	return out
}

// Monitors проверяет, отслеживает ли подписчик источник сообщения.
func (s SubscriberCriteria) Monitors(msg Message) bool {
	keys := msg.SourceKeys()
	for _, src := range s.Sources {
		for _, key := range keys {
			if src == key {
				return true
			}
		}
	}
	return false
}

// NormalizeKeywords приводит ключевые слова к нижнему регистру, удаляет пустые и дубли.
func NormalizeKeywords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func normalizeSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		key := NormalizeSourceKey(s)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
