package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// Options задаёт параметры оценщика.
type Options struct {
	// OracleBudget ограничивает общее время обращения к оракулу вместе с повторами.
	OracleBudget        time.Duration
	CacheTTL            time.Duration
	HeuristicFullLength int
}

// Scorer объединяет оракул, эвристику и правила корректировки в одну оценку важности.
// Оценка только читает критерии и безопасна для конкурентного использования.
type Scorer struct {
	oracle domain.ScoringOracle
	cache  domain.Cache
	opts   Options
	group  singleflight.Group
	log    zerolog.Logger
	now    func() time.Time
}

// NewScorer создаёт оценщик. oracle и cache могут быть nil: без оракула всегда
// используется эвристика, без кэша ответы оракула не переиспользуются.
func NewScorer(oracle domain.ScoringOracle, cache domain.Cache, opts Options, logger zerolog.Logger) *Scorer {
	if opts.OracleBudget <= 0 {
		opts.OracleBudget = 30 * time.Second
	}
	if opts.HeuristicFullLength <= 0 {
		opts.HeuristicFullLength = DefaultHeuristicFullLength
	}
	return &Scorer{oracle: oracle, cache: cache, opts: opts, log: logger, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score вычисляет оценку важности сообщения по критериям.
// Ошибка возвращается только при отмене контекста: недоступность оракула
// покрывается эвристикой, а сообщение вне границ длины получает 0.
func (s *Scorer) Score(ctx context.Context, msg domain.Message, c domain.Criteria) (domain.ImportanceScore, error) {
	now := s.now()
	runes := utf8.RuneCountInString(strings.TrimSpace(msg.Text))
	if !c.LengthAllowed(runes) {
		metrics.ObserveScore(string(domain.ScoreOriginRejected), 0)
		return domain.ImportanceScore{
			Origin:   domain.ScoreOriginRejected,
			Reason:   domain.ErrInvalidMessage.Error(),
			ScoredAt: now,
		}, nil
	}

	raw, origin, reason := s.base(ctx, msg, c)
	if err := ctx.Err(); err != nil {
		return domain.ImportanceScore{}, err
	}

	adj := Adjust(raw, msg, c, now)
	if len(adj.Flags) > 0 {
		metrics.CriteriaMisconfig.Inc()
		s.log.Warn().Strs("flags", adj.Flags).Strs("sources", msg.SourceKeys()).
			Msg("scoring: source is listed in both boost and reduce sets, boost applied")
	}
	score := domain.ImportanceScore{
		Raw:         raw,
		Origin:      origin,
		Adjustments: adj.Applied,
		Final:       adj.Final,
		Reason:      reason,
		Flags:       adj.Flags,
		ScoredAt:    now,
	}
	metrics.ObserveScore(string(origin), score.Final)
	return score, nil
}

// Personalize пересчитывает итоговую оценку с персональными ключевыми словами подписчика
// без повторного обращения к оракулу. Повышение и понижение по ключевым словам применяются
// не больше одного раза: если глобальный список уже сработал, личный список его не дублирует.
func (s *Scorer) Personalize(msg domain.Message, score domain.ImportanceScore, sub domain.SubscriberCriteria, c domain.Criteria) float64 {
	if score.Rejected() {
		return 0
	}
	value := score.Final
	if len(sub.Keywords) == 0 && len(sub.ExcludeKeywords) == 0 {
		return value
	}
	matcher := NewMatcher(msg.Text)
	_, globalBoost := matcher.Any(c.KeywordsBoost)
	_, globalReduce := matcher.Any(c.KeywordsReduce)
	if _, ok := matcher.Any(sub.Keywords); ok && !globalBoost {
		value += c.BoostIncrement
	}
	if _, ok := matcher.Any(sub.ExcludeKeywords); ok && !globalReduce {
		value -= c.ReduceDecrement
	}
	return clamp(value)
}

func (s *Scorer) base(ctx context.Context, msg domain.Message, c domain.Criteria) (float64, domain.ScoreOrigin, string) {
	if s.oracle == nil {
		return Heuristic(msg.Text, s.opts.HeuristicFullLength), domain.ScoreOriginHeuristic, ""
	}
	verdict, err := s.consult(ctx, msg, c)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.OracleFallbacks.WithLabelValues(reason).Inc()
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Int64("source", msg.SourceID).Int64("message", msg.MessageID).
				Msg("scoring: oracle unavailable, using heuristic")
		}
		return Heuristic(msg.Text, s.opts.HeuristicFullLength), domain.ScoreOriginHeuristic, ""
	}
	return clamp(verdict.Score), domain.ScoreOriginOracle, verdict.Reason
}

func (s *Scorer) consult(ctx context.Context, msg domain.Message, c domain.Criteria) (domain.OracleVerdict, error) {
	key := oracleKey(msg)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if verdict, ok := s.cached(ctx, key); ok {
			return verdict, nil
		}
		callCtx, cancel := context.WithTimeout(ctx, s.opts.OracleBudget)
		defer cancel()
		verdict, err := s.oracle.ScoreText(callCtx, msg.Text, domain.OracleContext{
			Source:    msg.SourceLabel(),
			Forwarded: msg.Forwarded,
			Keywords:  c.KeywordsBoost,
		})
		if err != nil {
			return domain.OracleVerdict{}, errors.Join(domain.ErrOracleUnavailable, err)
		}
		s.store(ctx, key, verdict)
		return verdict, nil
	})
	if err != nil {
		return domain.OracleVerdict{}, err
	}
	return v.(domain.OracleVerdict), nil
}

func (s *Scorer) cached(ctx context.Context, key string) (domain.OracleVerdict, bool) {
	if s.cache == nil {
		return domain.OracleVerdict{}, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Debug().Err(err).Msg("scoring: oracle cache read failed")
		}
		return domain.OracleVerdict{}, false
	}
	var verdict domain.OracleVerdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return domain.OracleVerdict{}, false
	}
	return verdict, true
}

func (s *Scorer) store(ctx context.Context, key string, verdict domain.OracleVerdict) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.log.Debug().Err(err).Msg("scoring: oracle cache write failed")
	}
}

func oracleKey(msg domain.Message) string {
	sum := sha256.Sum256([]byte(msg.SourceLabel() + "\x00" + msg.Text))
	return "oracle:" + hex.EncodeToString(sum[:16])
}
