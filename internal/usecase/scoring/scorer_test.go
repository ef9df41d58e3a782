package scoring

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/cache"
)

type stubOracle struct {
	score float64
	err   error
	delay time.Duration
	calls int32
}

func (o *stubOracle) ScoreText(ctx context.Context, _ string, _ domain.OracleContext) (domain.OracleVerdict, error) {
	atomic.AddInt32(&o.calls, 1)
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return domain.OracleVerdict{}, ctx.Err()
		}
	}
	if o.err != nil {
		return domain.OracleVerdict{}, o.err
	}
	return domain.OracleVerdict{Score: o.score, Reason: "stub"}, nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(oracle domain.ScoringOracle, opts Options) *Scorer {
	return NewScorer(oracle, nil, opts, zerolog.Nop()).WithClock(func() time.Time { return fixedNow })
}

// padTo дополняет текст нейтральными символами до нужной длины в рунах.
func padTo(text string, runes int) string {
	n := runes - len([]rune(text))
	if n <= 0 {
		return text
	}
	return text + strings.Repeat(".", n)
}

func TestScoreOracleWithBoostKeyword(t *testing.T) {
	s := newTestScorer(&stubOracle{score: 0.5}, Options{})
	msg := domain.Message{SourceID: -100, Text: padTo("Важно: плановые работы", 50), Date: fixedNow}
	require.Len(t, []rune(msg.Text), 50)

	score, err := s.Score(context.Background(), msg, domain.DefaultCriteria())
	require.NoError(t, err)
	require.Equal(t, domain.ScoreOriginOracle, score.Origin)
	require.InDelta(t, 0.5, score.Raw, 1e-9)
	require.InDelta(t, 0.7, score.Final, 1e-9)
	require.Equal(t, []domain.Adjustment{{Rule: RuleKeywordBoost, Delta: 0.2}}, score.Adjustments)
}

func TestScoreOracleTimeoutFallsBackToHeuristic(t *testing.T) {
	oracle := &stubOracle{score: 0.9, delay: time.Second}
	s := newTestScorer(oracle, Options{OracleBudget: 10 * time.Millisecond})
	msg := domain.Message{SourceID: -100, Text: padTo("обычное сообщение", 150), Date: fixedNow}

	score, err := s.Score(context.Background(), msg, domain.DefaultCriteria())
	require.NoError(t, err)
	require.Equal(t, domain.ScoreOriginHeuristic, score.Origin)
	require.InDelta(t, 0.3, score.Final, 1e-9)
	require.Empty(t, score.Adjustments)
}

func TestScoreOracleErrorFallsBack(t *testing.T) {
	s := newTestScorer(&stubOracle{err: errors.New("boom")}, Options{})
	msg := domain.Message{Text: padTo("реклама курса", 250)}

	score, err := s.Score(context.Background(), msg, domain.DefaultCriteria())
	require.NoError(t, err)
	require.Equal(t, domain.ScoreOriginHeuristic, score.Origin)
	require.InDelta(t, 0.3, score.Final, 1e-9, "0.5 по длине минус 0.2 за «реклама»")
}

func TestScoreRejectsLengthOutOfBounds(t *testing.T) {
	oracle := &stubOracle{score: 1}
	s := newTestScorer(oracle, Options{})
	c := domain.DefaultCriteria()
	c.MinMessageLength = 10
	c.MaxMessageLength = 20

	for _, text := range []string{"срочно", strings.Repeat("срочно ", 10)} {
		score, err := s.Score(context.Background(), domain.Message{Text: text}, c)
		require.NoError(t, err)
		require.True(t, score.Rejected())
		require.Zero(t, score.Final)
	}
	require.Zero(t, atomic.LoadInt32(&oracle.calls), "оракул не должен вызываться для отклонённых сообщений")
}

func TestScoreSourceBoostTakesPrecedence(t *testing.T) {
	s := newTestScorer(&stubOracle{score: 0.5}, Options{})
	c := domain.DefaultCriteria()
	c.SourcesBoost = []string{"@news"}
	c.SourcesReduce = []string{"@news", "@ads"}

	score, err := s.Score(context.Background(), domain.Message{SourceUsername: "news", Text: "обычный текст"}, c)
	require.NoError(t, err)
	require.InDelta(t, 0.6, score.Final, 1e-9)
	require.True(t, score.HasFlag(domain.ScoreFlagSourceConflict))

	score, err = s.Score(context.Background(), domain.Message{SourceUsername: "ads", Text: "обычный текст"}, c)
	require.NoError(t, err)
	require.InDelta(t, 0.4, score.Final, 1e-9)
	require.False(t, score.HasFlag(domain.ScoreFlagSourceConflict))
}

func TestScoreRecencyPenalty(t *testing.T) {
	s := newTestScorer(&stubOracle{score: 0.5}, Options{})
	c := domain.DefaultCriteria()
	c.RecencySensitive = true

	old := domain.Message{Text: "новости", Date: fixedNow.Add(-48 * time.Hour)}
	score, err := s.Score(context.Background(), old, c)
	require.NoError(t, err)
	require.InDelta(t, 0.4, score.Final, 1e-9)

	fresh := domain.Message{Text: "новости", Date: fixedNow.Add(-time.Hour)}
	score, err = s.Score(context.Background(), fresh, c)
	require.NoError(t, err)
	require.InDelta(t, 0.5, score.Final, 1e-9)
}

func TestScoreAlwaysClamped(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	words := []string{"важно", "срочно", "реклама", "спам", "новость", "погода"}
	for i := 0; i < 500; i++ {
		oracle := &stubOracle{score: rnd.Float64()*3 - 1}
		if i%7 == 0 {
			oracle.score = math.NaN()
		}
		s := newTestScorer(oracle, Options{})
		c := domain.DefaultCriteria()
		c.BoostIncrement = rnd.Float64()
		c.ReduceDecrement = rnd.Float64()
		c.SourcesBoost = []string{"@a"}
		c.SourcesReduce = []string{"@b"}
		c.RecencySensitive = rnd.Intn(2) == 0

		var b strings.Builder
		for j := 0; j < 1+rnd.Intn(8); j++ {
			b.WriteString(words[rnd.Intn(len(words))] + " ")
		}
		msg := domain.Message{
			SourceUsername: []string{"a", "b", "c"}[rnd.Intn(3)],
			Text:           b.String(),
			Date:           fixedNow.Add(-time.Duration(rnd.Intn(72)) * time.Hour),
		}
		score, err := s.Score(context.Background(), msg, c)
		require.NoError(t, err)
		require.GreaterOrEqual(t, score.Final, 0.0)
		require.LessOrEqual(t, score.Final, 1.0)
	}
}

func TestScoreCancelledContextReturnsError(t *testing.T) {
	s := newTestScorer(&stubOracle{score: 0.5, delay: time.Second}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.Score(ctx, domain.Message{Text: "текст"}, domain.DefaultCriteria())
	require.ErrorIs(t, err, context.Canceled)
}

func TestScoreWithoutOracleUsesHeuristic(t *testing.T) {
	s := newTestScorer(nil, Options{HeuristicFullLength: 100})
	score, err := s.Score(context.Background(), domain.Message{Text: padTo("x", 50)}, domain.DefaultCriteria())
	require.NoError(t, err)
	require.Equal(t, domain.ScoreOriginHeuristic, score.Origin)
	require.InDelta(t, 0.5, score.Final, 1e-9)
}

func TestScoreCollapsesConcurrentOracleCalls(t *testing.T) {
	oracle := &stubOracle{score: 0.5, delay: 50 * time.Millisecond}
	s := NewScorer(oracle, cache.NewMemory(16, time.Hour), Options{CacheTTL: time.Hour}, zerolog.Nop())
	msg := domain.Message{SourceID: 1, Text: "одинаковый текст"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Score(context.Background(), msg, domain.DefaultCriteria()); err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
			}
		}()
	}
	wg.Wait()
	_, err := s.Score(context.Background(), msg, domain.DefaultCriteria())
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&oracle.calls))
}

func TestPersonalize(t *testing.T) {
	s := newTestScorer(nil, Options{})
	c := domain.DefaultCriteria()
	msg := domain.Message{Text: "Матч отменён из-за погоды"}
	base := domain.ImportanceScore{Origin: domain.ScoreOriginOracle, Final: 0.5}

	sub := domain.NewSubscriberCriteria(1)
	require.InDelta(t, 0.5, s.Personalize(msg, base, sub, c), 1e-9)

	sub.Keywords = []string{"матч"}
	require.InDelta(t, 0.7, s.Personalize(msg, base, sub, c), 1e-9)

	sub.ExcludeKeywords = []string{"погод"}
	require.InDelta(t, 0.5, s.Personalize(msg, base, sub, c), 1e-9)

	rejected := domain.ImportanceScore{Origin: domain.ScoreOriginRejected}
	require.Zero(t, s.Personalize(msg, rejected, sub, c))
}

func TestPersonalizeDoesNotRepeatGlobalKeywordBoost(t *testing.T) {
	s := newTestScorer(nil, Options{})
	c := domain.DefaultCriteria()
	msg := domain.Message{Text: "Срочно: матч отменён, это реклама"}
	// Final уже содержит +0.2 за «срочно» и −0.2 за «реклама».
	base := domain.ImportanceScore{Origin: domain.ScoreOriginOracle, Final: 0.5}

	sub := domain.NewSubscriberCriteria(1)
	sub.Keywords = []string{"срочно", "матч"}
	sub.ExcludeKeywords = []string{"реклама"}
	require.InDelta(t, 0.5, s.Personalize(msg, base, sub, c), 1e-9)
}
