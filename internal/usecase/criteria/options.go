package criteria

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tg-importance-bot/internal/domain"
)

// Option описывает настраиваемый параметр критериев.
type Option struct {
	Name  string
	Help  string
	get   func(c domain.Criteria) string
	apply func(c *domain.Criteria, value string) error
}

var options = map[string]Option{}

func register(o Option) {
	options[o.Name] = o
}

func init() {
	register(boolOption("auto_publish_enabled", "публиковать без модерации",
		func(c *domain.Criteria) *bool { return &c.AutoPublishEnabled }))
	register(boolOption("require_admin_approval", "требовать одобрения администратора",
		func(c *domain.Criteria) *bool { return &c.RequireAdminApproval }))
	register(boolOption("recency_sensitive", "понижать устаревшие сообщения",
		func(c *domain.Criteria) *bool { return &c.RecencySensitive }))

	register(floatOption("importance_threshold", "глобальный порог важности",
		func(c *domain.Criteria) *float64 { return &c.ImportanceThreshold }))
	register(floatOption("boost_increment", "прибавка за ключевое слово",
		func(c *domain.Criteria) *float64 { return &c.BoostIncrement }))
	register(floatOption("reduce_decrement", "штраф за стоп-слово",
		func(c *domain.Criteria) *float64 { return &c.ReduceDecrement }))
	register(floatOption("source_boost", "прибавка за приоритетный источник",
		func(c *domain.Criteria) *float64 { return &c.SourceBoost }))
	register(floatOption("source_reduce", "штраф за понижаемый источник",
		func(c *domain.Criteria) *float64 { return &c.SourceReduce }))
	register(floatOption("recency_penalty", "штраф за давность",
		func(c *domain.Criteria) *float64 { return &c.RecencyPenalty }))

	register(intOption("min_message_length", "минимальная длина сообщения",
		func(c *domain.Criteria) *int { return &c.MinMessageLength }))
	register(intOption("max_message_length", "максимальная длина сообщения, 0 — без ограничения",
		func(c *domain.Criteria) *int { return &c.MaxMessageLength }))

	register(Option{
		Name: "publish_channel_id",
		Help: "канал для публикации",
		get:  func(c domain.Criteria) string { return strconv.FormatInt(c.PublishChannelID, 10) },
		apply: func(c *domain.Criteria, value string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: publish_channel_id: %v", domain.ErrInvalidOption, err)
			}
			c.PublishChannelID = id
			return nil
		},
	})
	register(Option{
		Name: "recency_window",
		Help: "возраст, после которого сообщение считается устаревшим",
		get:  func(c domain.Criteria) string { return c.RecencyWindow.String() },
		apply: func(c *domain.Criteria, value string) error {
			d, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil || d <= 0 {
				return fmt.Errorf("%w: recency_window: %q", domain.ErrInvalidOption, value)
			}
			c.RecencyWindow = d
			return nil
		},
	})

	register(setOption("keywords_boost", "ключевые слова, повышающие важность",
		func(c *domain.Criteria) *[]string { return &c.KeywordsBoost }))
	register(setOption("keywords_reduce", "слова, понижающие важность",
		func(c *domain.Criteria) *[]string { return &c.KeywordsReduce }))
	register(setOption("sources_boost", "приоритетные источники",
		func(c *domain.Criteria) *[]string { return &c.SourcesBoost }))
	register(setOption("sources_reduce", "понижаемые источники",
		func(c *domain.Criteria) *[]string { return &c.SourcesReduce }))
}

// Options возвращает список настроек в алфавитном порядке.
func Options() []Option {
	out := make([]Option, 0, len(options))
	for _, o := range options {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Value возвращает текущее значение настройки в текстовом виде.
func (o Option) Value(c domain.Criteria) string {
	return o.get(c)
}

// ApplyOption разбирает значение и применяет его к критериям.
// Для наборов «+a,b» добавляет элементы, «-a» удаляет, иначе заменяет набор целиком.
func ApplyOption(c *domain.Criteria, name, value string) error {
	o, ok := options[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w: unknown option %q", domain.ErrInvalidOption, name)
	}
	return o.apply(c, value)
}

// Describe возвращает настройки с текущими значениями, по одной на строку.
func Describe(c domain.Criteria) string {
	var b strings.Builder
	for _, o := range Options() {
		fmt.Fprintf(&b, "%s = %s\n", o.Name, o.Value(c))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseBool понимает true/false, on/off, yes/no, да/нет, 1/0.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes", "да", "вкл":
		return true, nil
	case "0", "false", "off", "no", "нет", "выкл":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected boolean, got %q", domain.ErrInvalidOption, value)
	}
}

func boolOption(name, help string, field func(c *domain.Criteria) *bool) Option {
	return Option{
		Name: name,
		Help: help,
		get:  func(c domain.Criteria) string { return strconv.FormatBool(*field(&c)) },
		apply: func(c *domain.Criteria, value string) error {
			v, err := ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func floatOption(name, help string, field func(c *domain.Criteria) *float64) Option {
	return Option{
		Name: name,
		Help: help,
		get:  func(c domain.Criteria) string { return strconv.FormatFloat(*field(&c), 'f', -1, 64) },
		apply: func(c *domain.Criteria, value string) error {
			v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
			if err != nil || v < 0 || v > 1 {
				return fmt.Errorf("%w: %s must be a number within [0,1]", domain.ErrInvalidOption, name)
			}
			*field(c) = v
			return nil
		},
	}
}

func intOption(name, help string, field func(c *domain.Criteria) *int) Option {
	return Option{
		Name: name,
		Help: help,
		get:  func(c domain.Criteria) string { return strconv.Itoa(*field(&c)) },
		apply: func(c *domain.Criteria, value string) error {
			v, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || v < 0 {
				return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidOption, name)
			}
			*field(c) = v
			return nil
		},
	}
}

func setOption(name, help string, field func(c *domain.Criteria) *[]string) Option {
	return Option{
		Name: name,
		Help: help,
		get:  func(c domain.Criteria) string { return strings.Join(*field(&c), ", ") },
		apply: func(c *domain.Criteria, value string) error {
			value = strings.TrimSpace(value)
			target := field(c)
			switch {
			case strings.HasPrefix(value, "+"):
				*target = append(*target, splitList(value[1:])...)
			case strings.HasPrefix(value, "-") && !isNumeric(value):
				remove := make(map[string]struct{})
				for _, item := range splitList(value[1:]) {
					remove[strings.ToLower(item)] = struct{}{}
					remove[domain.NormalizeSourceKey(item)] = struct{}{}
				}
				kept := (*target)[:0:0]
				for _, item := range *target {
					if _, ok := remove[strings.ToLower(item)]; ok {
						continue
					}
					kept = append(kept, item)
				}
				*target = kept
			default:
				*target = splitList(value)
			}
			return nil
		},
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isNumeric(value string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(strings.Split(value, ",")[0]), 10, 64)
	return err == nil
}
