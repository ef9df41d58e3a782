package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/lock"
	"tg-importance-bot/internal/usecase/access"
	"tg-importance-bot/internal/usecase/criteria"
	"tg-importance-bot/internal/usecase/moderation"
	"tg-importance-bot/internal/usecase/pipeline"
	"tg-importance-bot/internal/usecase/subscriptions"
)

const adminID int64 = 1

type fakeAPI struct {
	mu        sync.Mutex
	sent      map[int64][]string
	callbacks []string
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	a.sent[msg.ChatID] = append(a.sent[msg.ChatID], msg.Text)
	return tgbotapi.Message{MessageID: 1}, nil
}

func (a *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		a.callbacks = append(a.callbacks, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) last(chatID int64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type okPublisher struct{}

func (okPublisher) Publish(context.Context, int64, domain.Post) (int, error) { return 7, nil }

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, int64, domain.Event) error { return nil }

func (silentNotifier) Broadcast(_ context.Context, ids []int64, _ domain.Event) int { return len(ids) }

type stubSubmitter struct {
	calls []string
}

func (s *stubSubmitter) SubmitManual(_ context.Context, _ int64, text string) (pipeline.Result, error) {
	s.calls = append(s.calls, text)
	post := domain.NewPost("manual-1", text, 5, nil, nil, time.Now())
	post.State = domain.PostStatePendingReview
	return pipeline.Result{Post: &post}, nil
}

type fixture struct {
	handler   *Handler
	api       *fakeAPI
	store     *memory.Store
	subs      *subscriptions.Service
	criteria  *criteria.Store
	submitter *stubSubmitter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	crit := criteria.NewStore(store, zerolog.Nop())
	require.NoError(t, crit.Load(context.Background(), domain.DefaultCriteria()))
	acc := access.NewService(store, []int64{adminID})
	subs := subscriptions.NewService(store, 0)
	moder := moderation.NewService(moderation.NewQueue(store, lock.NewKeyed()), okPublisher{}, silentNotifier{}, acc, crit, nil, 0, zerolog.Nop())
	api := &fakeAPI{sent: map[int64][]string{}}
	submitter := &stubSubmitter{}
	return fixture{
		handler:   NewHandler(api, zerolog.Nop(), acc, subs, crit, moder, submitter),
		api:       api,
		store:     store,
		subs:      subs,
		criteria:  crit,
		submitter: submitter,
	}
}

func command(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, cmd, args string
	}{
		{"/reject abc спам и реклама", "reject", "abc спам и реклама"},
		{"/Monitor@importance_bot @city_news", "monitor", "@city_news"},
		{"/submit\nТекст поста", "submit", "Текст поста"},
		{"  /pending  ", "pending", ""},
		{"просто текст", "", "просто текст"},
	}
	for _, tc := range cases {
		cmd, args := ParseCommand(tc.text)
		require.Equal(t, tc.cmd, cmd, tc.text)
		require.Equal(t, tc.args, args, tc.text)
	}
}

func TestParseList(t *testing.T) {
	require.Equal(t, []string{"авария", "отключение воды"}, ParseList(" авария, отключение воды ;"))
	require.Empty(t, ParseList(" , "))
}

func TestSubscriberCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleUpdate(ctx, command(10, "/monitor https://t.me/City_News"))
	require.Contains(t, f.api.last(10), "Источник добавлен")
	f.handler.HandleUpdate(ctx, command(10, "/threshold 0,35"))
	f.handler.HandleUpdate(ctx, command(10, "/keyword пробки, ДТП"))

	sub := f.subs.Get(10)
	require.Equal(t, []string{"@city_news"}, sub.Sources)
	require.InDelta(t, 0.35, sub.Threshold, 1e-9)
	require.Len(t, sub.Keywords, 2)

	f.handler.HandleUpdate(ctx, command(10, "/threshold 2"))
	require.Contains(t, f.api.last(10), "от 0 до 1")

	f.handler.HandleUpdate(ctx, command(10, "/monitor ab"))
	require.Contains(t, f.api.last(10), "Некорректный источник")

	f.handler.HandleUpdate(ctx, command(10, "/sources"))
	require.Contains(t, f.api.last(10), "@city_news")
}

func TestAdminCommandsRequireCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"/pending", "/criteria", "/set importance_threshold 0.9", "/grant 5 admin", "/submit пост"} {
		f.handler.HandleUpdate(ctx, command(10, text))
		require.Contains(t, f.api.last(10), "Недостаточно прав", text)
	}
	require.Empty(t, f.submitter.calls)
	require.InDelta(t, domain.DefaultImportanceThreshold, f.criteria.Snapshot().ImportanceThreshold, 1e-9)
}

func TestSetAndGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleUpdate(ctx, command(adminID, "/set keywords_boost +эвакуация"))
	require.Contains(t, f.criteria.Snapshot().KeywordsBoost, "эвакуация")

	f.handler.HandleUpdate(ctx, command(adminID, "/set importance_threshold abc"))
	require.Contains(t, f.api.last(adminID), "Не удалось применить настройку")

	f.handler.HandleUpdate(ctx, command(adminID, "/grant 5 submitter"))
	require.Contains(t, f.api.last(adminID), "submitter")

	f.handler.HandleUpdate(ctx, command(5, "/submit Субботник во дворе в субботу"))
	require.Equal(t, []string{"Субботник во дворе в субботу"}, f.submitter.calls)
	require.Contains(t, f.api.last(5), "отправлен на модерацию")
}

func TestDecisionCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"p1", "p2"} {
		post := domain.NewPost(id, "Текст поста "+id, 5, nil, nil, time.Now())
		require.NoError(t, post.Transition(domain.PostStatePendingReview, time.Now()))
		require.NoError(t, f.store.SavePost(ctx, post))
	}

	f.handler.HandleUpdate(ctx, command(adminID, "/pending"))
	require.True(t, strings.HasPrefix(f.api.sent[adminID][0], "Постов на модерации: 2"))

	f.handler.HandleUpdate(ctx, callback(10, "approve:p1"))
	require.Equal(t, "Недостаточно прав", f.api.callbacks[0])

	f.handler.HandleUpdate(ctx, callback(adminID, "approve:p1"))
	require.Equal(t, "Опубликовано", f.api.callbacks[1])
	f.handler.HandleUpdate(ctx, callback(adminID, "reject:p1"))
	require.Equal(t, "Решение уже принято", f.api.callbacks[2])

	f.handler.HandleUpdate(ctx, command(adminID, "/reject p2 повтор новости"))
	post, err := f.store.GetPost(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, domain.PostStateRejected, post.State)
	require.Equal(t, "повтор новости", post.Decision.Reason)

	f.handler.HandleUpdate(ctx, command(adminID, "/purge p2"))
	_, err = f.store.GetPost(ctx, "p2")
	require.ErrorIs(t, err, domain.ErrPostNotFound)
}
