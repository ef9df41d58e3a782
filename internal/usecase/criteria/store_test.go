package criteria

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/domain"
)

type failingRepo struct {
	*memory.Store
	fail bool
}

func (r *failingRepo) SaveCriteria(ctx context.Context, c domain.Criteria) error {
	if r.fail {
		return errors.New("db down")
	}
	return r.Store.SaveCriteria(ctx, c)
}

func TestLoadSeedsWhenEmpty(t *testing.T) {
	repo := memory.New()
	s := NewStore(repo, zerolog.Nop())
	seed := domain.DefaultCriteria()
	seed.ImportanceThreshold = 0.5
	seed.KeywordsBoost = []string{"Срочно", "срочно "}

	require.NoError(t, s.Load(context.Background(), seed))
	require.Equal(t, 0.5, s.Snapshot().ImportanceThreshold)
	require.Equal(t, []string{"срочно"}, s.Snapshot().KeywordsBoost)

	stored, err := repo.LoadCriteria(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.5, stored.ImportanceThreshold)
}

func TestLoadPrefersStoredCriteria(t *testing.T) {
	repo := memory.New()
	stored := domain.DefaultCriteria()
	stored.ImportanceThreshold = 0.9
	require.NoError(t, repo.SaveCriteria(context.Background(), stored))

	s := NewStore(repo, zerolog.Nop())
	require.NoError(t, s.Load(context.Background(), domain.DefaultCriteria()))
	require.Equal(t, 0.9, s.Snapshot().ImportanceThreshold)
}

func TestUpdateInvalidKeepsSnapshot(t *testing.T) {
	s := NewStore(memory.New(), zerolog.Nop())
	require.NoError(t, s.Load(context.Background(), domain.DefaultCriteria()))

	_, err := s.SetOption(context.Background(), "importance_threshold", "1.5")
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = s.Update(context.Background(), func(c *domain.Criteria) error {
		c.MinMessageLength = 100
		c.MaxMessageLength = 10
		return nil
	})
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	snap := s.Snapshot()
	require.Equal(t, domain.DefaultImportanceThreshold, snap.ImportanceThreshold)
	require.Equal(t, domain.DefaultMaxMessageLength, snap.MaxMessageLength)
}

func TestUpdateSaveFailureKeepsSnapshot(t *testing.T) {
	repo := &failingRepo{Store: memory.New()}
	s := NewStore(repo, zerolog.Nop())
	require.NoError(t, s.Load(context.Background(), domain.DefaultCriteria()))

	repo.fail = true
	_, err := s.SetOption(context.Background(), "auto_publish_enabled", "да")
	require.Error(t, err)
	require.False(t, s.Snapshot().AutoPublishEnabled)

	repo.fail = false
	got, err := s.SetOption(context.Background(), "auto_publish_enabled", "да")
	require.NoError(t, err)
	require.True(t, got.AutoPublishEnabled)
	require.True(t, s.Snapshot().AutoPublishEnabled)
}

func TestSnapshotIsolatedFromUpdates(t *testing.T) {
	s := NewStore(memory.New(), zerolog.Nop())
	require.NoError(t, s.Load(context.Background(), domain.DefaultCriteria()))

	before := s.Snapshot()
	_, err := s.SetOption(context.Background(), "keywords_boost", "+авария")
	require.NoError(t, err)

	require.Equal(t, []string{"важно", "срочно"}, before.KeywordsBoost)
	require.Equal(t, []string{"важно", "срочно", "авария"}, s.Snapshot().KeywordsBoost)
}

func TestConcurrentUpdatesAllApplied(t *testing.T) {
	s := NewStore(memory.New(), zerolog.Nop())
	require.NoError(t, s.Load(context.Background(), domain.DefaultCriteria()))

	words := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"}
	var wg sync.WaitGroup
	for _, w := range words {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			if _, err := s.SetOption(context.Background(), "keywords_reduce", "+"+w); err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
			}
			_ = s.Snapshot()
		}(w)
	}
	wg.Wait()

	require.ElementsMatch(t, append([]string{"реклама", "спам"}, words...), s.Snapshot().KeywordsReduce)
}
