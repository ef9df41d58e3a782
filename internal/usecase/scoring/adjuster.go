package scoring

import (
	"math"
	"time"

	"tg-importance-bot/internal/domain"
)

const (
	RuleKeywordBoost  = "keyword_boost"
	RuleKeywordReduce = "keyword_reduce"
	RuleSourceBoost   = "source_boost"
	RuleSourceReduce  = "source_reduce"
	RuleRecency       = "recency"
)

// Adjustment — результат применения правил к базовой оценке.
type Adjustment struct {
	Final   float64
	Applied []domain.Adjustment
	Flags   []string
}

// Adjust применяет детерминированные правила в фиксированном порядке:
// ключевые слова усиления, ключевые слова понижения, источник, давность.
// Источник из обоих списков усиливается и помечается флагом source_conflict.
func Adjust(base float64, msg domain.Message, c domain.Criteria, now time.Time) Adjustment {
	var out Adjustment
	value := clamp(base)
	matcher := NewMatcher(msg.Text)

	if _, ok := matcher.Any(c.KeywordsBoost); ok {
		value += c.BoostIncrement
		out.Applied = append(out.Applied, domain.Adjustment{Rule: RuleKeywordBoost, Delta: c.BoostIncrement})
	}
	if _, ok := matcher.Any(c.KeywordsReduce); ok {
		value -= c.ReduceDecrement
		out.Applied = append(out.Applied, domain.Adjustment{Rule: RuleKeywordReduce, Delta: -c.ReduceDecrement})
	}

	boosted := sourceListed(msg, c.SourcesBoost)
	reduced := sourceListed(msg, c.SourcesReduce)
	switch {
	case boosted:
		value += c.SourceBoost
		out.Applied = append(out.Applied, domain.Adjustment{Rule: RuleSourceBoost, Delta: c.SourceBoost})
		if reduced {
			out.Flags = append(out.Flags, domain.ScoreFlagSourceConflict)
		}
	case reduced:
		value -= c.SourceReduce
		out.Applied = append(out.Applied, domain.Adjustment{Rule: RuleSourceReduce, Delta: -c.SourceReduce})
	}

	if c.RecencySensitive && c.RecencyWindow > 0 && !msg.Date.IsZero() && now.Sub(msg.Date) > c.RecencyWindow {
		value -= c.RecencyPenalty
		out.Applied = append(out.Applied, domain.Adjustment{Rule: RuleRecency, Delta: -c.RecencyPenalty})
	}

	out.Final = clamp(value)
	return out
}

func sourceListed(msg domain.Message, sources []string) bool {
	if len(sources) == 0 {
		return false
	}
	for _, key := range msg.SourceKeys() {
		for _, s := range sources {
			if domain.NormalizeSourceKey(s) == key {
				return true
			}
		}
	}
	return false
}

// clamp ограничивает значение отрезком [0,1] и округляет до 4 знаков,
// чтобы сравнение с порогом не зависело от погрешности сложения.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1e4) / 1e4
}
